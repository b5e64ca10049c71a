// Package notify delivers fire-and-forget alerts to external collaborators.
// Callers never wait on delivery and never see its errors.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Kind names why a notification was raised.
type Kind string

const (
	KindPotentialAbuse  Kind = "potential_abuse"
	KindRecoveryFailure Kind = "recovery.failure"
)

type Notification struct {
	Kind       Kind              `json:"kind"`
	Subject    string            `json:"subject"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Hook delivers one notification. Implementations may block; the
// Dispatcher runs them off the caller's goroutine.
type Hook interface {
	Deliver(ctx context.Context, n Notification) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, n Notification) error

func (f HookFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// Notifier is what the core depends on.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

const defaultDeliveryTimeout = 5 * time.Second

// Dispatcher fans a notification out to every hook on its own goroutine.
type Dispatcher struct {
	hooks   []Hook
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func NewDispatcher(hooks []Hook, opts ...Option) *Dispatcher {
	d := &Dispatcher{hooks: hooks, logger: slog.Default(), timeout: defaultDeliveryTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify returns immediately. Delivery runs detached from ctx's cancellation
// but keeps its values.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	base := context.WithoutCancel(ctx)
	for _, hook := range d.hooks {
		go d.deliver(base, hook, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, hook Hook, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "notification hook panicked", "kind", string(n.Kind), "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := hook.Deliver(ctx, n); err != nil {
		d.logger.WarnContext(ctx, "notification delivery failed", "kind", string(n.Kind), "subject", n.Subject, "error", err)
	}
}

// LogHook writes notifications to a logger.
type LogHook struct {
	logger *slog.Logger
}

func NewLogHook(logger *slog.Logger) *LogHook {
	return &LogHook{logger: logger}
}

func (h *LogHook) Deliver(ctx context.Context, n Notification) error {
	h.logger.WarnContext(ctx, "alert",
		"kind", string(n.Kind),
		"subject", n.Subject,
		"message", n.Message,
	)
	return nil
}
