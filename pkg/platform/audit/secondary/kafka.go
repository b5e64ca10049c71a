package secondary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "bastion/pkg/platform/audit"
)

// KafkaSink publishes each record as JSON to a topic, keyed by operation id so
// one operation's records stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func NewKafkaSink(client *kgo.Client, topic string) *KafkaSink {
	return &KafkaSink{client: client, topic: topic}
}

func (k *KafkaSink) Write(ctx context.Context, records []audit.Record) error {
	batch := make([]*kgo.Record, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record %s: %w", rec.ID, err)
		}
		key := rec.OperationID
		if key == "" {
			key = rec.ID
		}
		batch = append(batch, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(key),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "type", Value: []byte(rec.Type)},
				{Key: "category", Value: []byte(rec.Type.Category())},
				{Key: "severity", Value: []byte(rec.Severity)},
			},
		})
	}
	if err := k.client.ProduceSync(ctx, batch...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}
	return nil
}
