// Package audit implements the audit trail: signed, append-only records with
// a best-effort secondary channel and read APIs for timeline reconstruction.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"bastion/internal/platform/metrics"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/audit/secondary"
	"bastion/pkg/requestcontext"
)

// RecordSigner seals records on write and checks them on read.
type RecordSigner interface {
	Sign(rec *audit.Record) error
	Verify(rec audit.Record) error
}

// Trail is the single entry point for writing and reading audit records.
//
// Record never fails the caller: a signing or primary sink error degrades to
// the secondary buffer and a log line.
type Trail struct {
	store     audit.Store
	signer    RecordSigner
	secondary *secondary.RingBuffer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	degraded  atomic.Int64
}

type Option func(*Trail)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

// WithSecondary enables the second channel for critical records and for
// primary-sink failures.
func WithSecondary(buf *secondary.RingBuffer) Option {
	return func(t *Trail) { t.secondary = buf }
}

func New(store audit.Store, signer RecordSigner, opts ...Option) (*Trail, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if signer == nil {
		return nil, errors.New("audit signer is required")
	}
	t := &Trail{store: store, signer: signer, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Record fills defaults from ctx, signs rec and appends it.
func (t *Trail) Record(ctx context.Context, rec audit.Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = requestcontext.Now(ctx)
	}
	if rec.Severity == "" {
		rec.Severity = audit.SeverityInfo
	}
	if rec.OperationID == "" {
		rec.OperationID = requestcontext.OperationID(ctx)
	}
	if rec.Context.RequestID == "" {
		rec.Context.RequestID = requestcontext.RequestID(ctx)
	}
	if rec.Context.SystemMode == "" {
		rec.Context.SystemMode = requestcontext.SystemMode(ctx)
	}

	if err := t.signer.Sign(&rec); err != nil {
		t.degrade(ctx, rec, fmt.Errorf("sign audit record: %w", err))
		return
	}

	if err := t.store.Append(ctx, rec); err != nil {
		t.degrade(ctx, rec, err)
		return
	}
	t.metrics.IncAuditRecord(string(rec.Type))

	if rec.Critical && t.secondary != nil {
		t.secondary.Enqueue(rec)
	}
}

// degrade handles a record that never reached the primary store, whether
// signing or the append failed.
func (t *Trail) degrade(ctx context.Context, rec audit.Record, cause error) {
	t.degraded.Add(1)
	t.metrics.IncAuditSinkDegraded()
	err := dErrors.Wrap(cause, dErrors.CodeAuditSinkDegraded, "audit record not persisted")
	t.logger.WarnContext(ctx, "audit sink degraded",
		"event", string(rec.Type),
		"record_id", rec.ID,
		"operation_id", rec.OperationID,
		"error", err,
	)
	if t.secondary == nil {
		return
	}
	t.secondary.Enqueue(rec)

	note := audit.Record{
		ID:          uuid.NewString(),
		Type:        audit.EventAuditSinkDegraded,
		Severity:    audit.SeverityWarning,
		Timestamp:   rec.Timestamp,
		OperationID: rec.OperationID,
		Reason:      cause.Error(),
		Details:     map[string]string{"record_id": rec.ID},
	}
	if signErr := t.signer.Sign(&note); signErr != nil {
		t.logger.ErrorContext(ctx, "degradation note left unsigned", "record_id", rec.ID, "error", signErr)
	}
	t.secondary.Enqueue(note)
}

// DegradedCount is the number of primary writes that failed since start.
func (t *Trail) DegradedCount() int64 {
	return t.degraded.Load()
}

// QueueDepth is the number of records waiting on the secondary channel.
func (t *Trail) QueueDepth() int {
	if t.secondary == nil {
		return 0
	}
	return t.secondary.Len()
}

// ListByOperation returns the records of one operation in timestamp order.
func (t *Trail) ListByOperation(ctx context.Context, operationID string) ([]audit.Record, error) {
	recs, err := t.store.ListByOperation(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("list audit records for operation %s: %w", operationID, err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	return recs, nil
}

func (t *Trail) ListByType(ctx context.Context, eventType audit.EventType) ([]audit.Record, error) {
	recs, err := t.store.ListByType(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("list audit records of type %s: %w", eventType, err)
	}
	return recs, nil
}

// SecurityMarker summarizes the security-category records in the primary
// store. It changes whenever a new security event is written.
func (t *Trail) SecurityMarker(ctx context.Context) (string, error) {
	recs, err := t.store.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("security marker: %w", err)
	}
	var n int
	var last string
	for _, rec := range recs {
		if rec.Type.Category() == audit.CategorySecurity {
			n++
			last = rec.ID
		}
	}
	return fmt.Sprintf("security=%d last=%s", n, last), nil
}
