// Package mode holds the system-wide operating mode as an explicit state
// machine. The current mode is threaded to guarded calls through their
// context; nothing reads it from a global.
package mode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/requestcontext"
)

// Mode is the operating mode of the system.
type Mode string

const (
	Normal    Mode = "normal"
	Degraded  Mode = "degraded"
	Emergency Mode = "emergency"
)

var edges = map[Mode][]Mode{
	Normal:    {Degraded},
	Degraded:  {Normal, Emergency},
	Emergency: {Degraded},
}

// CanTransition reports whether from→to is an allowed edge.
func CanTransition(from, to Mode) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FromContext returns the mode threaded into ctx, defaulting to Normal.
func FromContext(ctx context.Context) Mode {
	switch m := Mode(requestcontext.SystemMode(ctx)); m {
	case Degraded, Emergency:
		return m
	default:
		return Normal
	}
}

// Auditor is the slice of the audit trail the machine writes to.
type Auditor interface {
	Record(ctx context.Context, rec audit.Record)
}

// Machine owns the current mode. Every transition is written to the audit
// trail before Transition returns.
type Machine struct {
	mu      sync.Mutex
	current Mode
	auditor Auditor
	logger  *slog.Logger
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func NewMachine(auditor Auditor, opts ...Option) *Machine {
	m := &Machine{current: Normal, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Context threads the current mode into ctx.
func (m *Machine) Context(ctx context.Context) context.Context {
	return requestcontext.WithSystemMode(ctx, string(m.Current()))
}

// Transition moves to target. A transition to the current mode is a no-op;
// any edge not in the state machine returns CodeInvalidTransition.
func (m *Machine) Transition(ctx context.Context, target Mode, reason string) error {
	m.mu.Lock()
	from := m.current
	if from == target {
		m.mu.Unlock()
		return nil
	}
	if !CanTransition(from, target) {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("mode transition %s -> %s not allowed", from, target))
	}
	m.current = target
	m.mu.Unlock()

	severity := audit.SeverityWarning
	switch target {
	case Emergency:
		severity = audit.SeverityCritical
	case Normal:
		severity = audit.SeverityInfo
	}
	m.logger.WarnContext(ctx, "system mode changed", "from", string(from), "to", string(target), "reason", reason)
	if m.auditor != nil {
		m.auditor.Record(ctx, audit.Record{
			Type:     audit.EventModeTransition,
			Severity: severity,
			Reason:   reason,
			Details:  map[string]string{"from": string(from), "to": string(target)},
			Critical: target == Emergency,
		})
	}
	return nil
}
