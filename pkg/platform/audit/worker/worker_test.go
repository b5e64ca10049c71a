package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/audit/secondary"
	"bastion/pkg/platform/circuit"
)

type WorkerSuite struct {
	suite.Suite
	buffer  *secondary.RingBuffer
	sink    *secondary.MemorySink
	breaker *circuit.Breaker
	dropped int
	worker  *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.buffer = secondary.NewRingBuffer(16)
	s.sink = secondary.NewMemorySink()
	s.breaker = circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	s.dropped = 0
	s.worker = New(s.buffer, s.sink,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBatchSize(2),
		WithBreaker(s.breaker),
		WithDropHook(func(n int) { s.dropped += n }),
	)
}

func (s *WorkerSuite) TestDrainDeliversInBatches() {
	for _, id := range []string{"a", "b", "c"} {
		s.buffer.Enqueue(audit.Record{ID: id})
	}
	s.Equal(3, s.worker.Drain(context.Background()))
	s.Len(s.sink.Records(), 3)
	s.Equal(0, s.buffer.Len())
}

func (s *WorkerSuite) TestSinkFailureOpensBreakerAndDrops() {
	s.sink.FailWith(errors.New("broker down"))
	for range 2 {
		s.buffer.Enqueue(audit.Record{ID: "x"})
		s.worker.Drain(context.Background())
	}
	s.True(s.breaker.IsOpen())
	s.Equal(2, s.dropped)

	s.sink.FailWith(nil)
	s.buffer.Enqueue(audit.Record{ID: "y"})
	s.Equal(1, s.worker.Drain(context.Background()))
	s.False(s.breaker.IsOpen())
}

func (s *WorkerSuite) TestRunDrainsOnEnqueue() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.worker.Run(ctx) }()

	s.buffer.Enqueue(audit.Record{ID: "live"})
	s.Eventually(func() bool { return len(s.sink.Records()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	s.ErrorIs(<-done, context.Canceled)
}
