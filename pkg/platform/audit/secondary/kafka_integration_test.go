//go:build integration

package secondary

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "bastion/pkg/platform/audit"
	"bastion/pkg/testutil/containers"
)

func TestKafkaSink_PublishesRecords(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	const topic = "audit-secondary"

	producer, err := kgo.NewClient(kgo.SeedBrokers(rp.Brokers...), kgo.AllowAutoTopicCreation())
	require.NoError(t, err)
	defer producer.Close()

	sink := NewKafkaSink(producer, topic)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, sink.Write(ctx, []audit.Record{
		{ID: "r-1", Type: audit.EventFailure, Severity: audit.SeverityWarning, OperationID: "op-1", Critical: true},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	var got []audit.Record
	fetches.EachRecord(func(r *kgo.Record) {
		var rec audit.Record
		require.NoError(t, json.Unmarshal(r.Value, &rec))
		require.Equal(t, "op-1", string(r.Key))
		got = append(got, rec)
	})
	require.Len(t, got, 1)
	require.Equal(t, "r-1", got[0].ID)
}
