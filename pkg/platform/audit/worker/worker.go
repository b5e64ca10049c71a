package worker

import (
	"context"
	"log/slog"
	"time"

	"bastion/pkg/platform/audit/secondary"
	"bastion/pkg/platform/circuit"
)

const (
	defaultBatchSize     = 100
	defaultProbeInterval = time.Second
)

// Worker drains the secondary audit buffer into a sink. Sink failures are
// logged and counted; they never reach the caller that enqueued the record.
// While the breaker is open, only the periodic probe attempts a write.
type Worker struct {
	buffer        *secondary.RingBuffer
	sink          secondary.Sink
	breaker       *circuit.Breaker
	logger        *slog.Logger
	batchSize     int
	probeInterval time.Duration
	onDrop        func(n int)
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithProbeInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.probeInterval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) { w.breaker = b }
}

// WithDropHook is called with the size of every batch the sink rejected.
func WithDropHook(fn func(n int)) Option {
	return func(w *Worker) { w.onDrop = fn }
}

func New(buffer *secondary.RingBuffer, sink secondary.Sink, opts ...Option) *Worker {
	w := &Worker{
		buffer:        buffer,
		sink:          sink,
		breaker:       circuit.New("audit-secondary"),
		logger:        slog.Default(),
		batchSize:     defaultBatchSize,
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.buffer.Ready():
			if !w.breaker.IsOpen() {
				w.Drain(ctx)
			}
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain writes buffered records until the buffer is empty or a write fails.
// It returns the number of records delivered.
func (w *Worker) Drain(ctx context.Context) int {
	delivered := 0
	for {
		batch := w.buffer.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return delivered
		}
		if err := w.sink.Write(ctx, batch); err != nil {
			_, change := w.breaker.RecordFailure()
			w.logger.WarnContext(ctx, "secondary audit write failed",
				"error", err,
				"dropped", len(batch),
				"breaker", w.breaker.State().String(),
			)
			if change.Opened {
				w.logger.ErrorContext(ctx, "secondary audit channel circuit opened", "breaker", w.breaker.Name())
			}
			if w.onDrop != nil {
				w.onDrop(len(batch))
			}
			return delivered
		}
		if _, change := w.breaker.RecordSuccess(); change.Closed {
			w.logger.InfoContext(ctx, "secondary audit channel circuit closed", "breaker", w.breaker.Name())
		}
		delivered += len(batch)
	}
}
