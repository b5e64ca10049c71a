package secondary

import (
	"context"
	"slices"
	"sync"

	audit "bastion/pkg/platform/audit"
)

// Sink receives batches drained from the buffer. Implementations should be
// independent of the primary audit store.
type Sink interface {
	Write(ctx context.Context, records []audit.Record) error
}

// MemorySink keeps written records in memory. It backs tests and
// single-process deployments without a broker.
type MemorySink struct {
	mu      sync.Mutex
	records []audit.Record
	failErr error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Write(_ context.Context, records []audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.records = append(m.records, records...)
	return nil
}

// FailWith makes subsequent writes return err; nil restores normal behaviour.
func (m *MemorySink) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemorySink) Records() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records)
}
