// Package guard executes critical operations inside a transaction, between
// validation phases, with every outcome written to the audit trail.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bastion/internal/guard/models"
	"bastion/internal/mode"
	"bastion/internal/persistence"
	"bastion/internal/platform/metrics"
	"bastion/internal/validation"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/requestcontext"
)

const (
	DefaultTimeout = 10 * time.Second

	// txSlack keeps the transaction open a little past the body timeout so
	// the guard, not the transactor, decides when the body has run too long.
	txSlack = time.Second
)

// Outcome labels used for metrics and span attributes.
const (
	OutcomeSuccess          = "success"
	OutcomeUnauthorized     = "unauthorized"
	OutcomeValidationFailed = "validation_failed"
	OutcomeFailure          = "failure"
	OutcomeRefused          = "refused"
)

// Failure stages.
const (
	StagePre  = "pre_check"
	StageExec = "execution"
	StagePost = "post_check"
	StageTx   = "transaction"
)

// Pipeline runs the validation phases.
type Pipeline interface {
	ValidatePre(ctx context.Context, op *models.Operation, sc models.SecurityContext) (*validation.Result, error)
	ValidatePost(ctx context.Context, op *models.Operation, sc models.SecurityContext, result any) (*validation.Result, error)
}

// AuditTrail is the slice of the trail the guard writes to.
type AuditTrail interface {
	Record(ctx context.Context, rec audit.Record)
	QueueDepth() int
}

// RecoveryHandler is invoked after a critical operation fails.
type RecoveryHandler interface {
	HandleCriticalFailure(ctx context.Context, cause error, oc models.OperationContext)
}

// IsolationChecker reports components that recovery has taken out of service.
type IsolationChecker interface {
	IsIsolated(component string) bool
}

// ModeSource threads the current system mode into a context.
type ModeSource interface {
	Context(ctx context.Context) context.Context
}

type Guard struct {
	tx       persistence.Transactor
	pipeline Pipeline
	trail    AuditTrail

	recovery  RecoveryHandler
	isolation IsolationChecker
	modes     ModeSource

	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	defaultTimeout time.Duration
	criticalTypes  map[string]bool

	inFlight atomic.Int64
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) { g.tracer = t }
}

func WithRecovery(r RecoveryHandler) Option {
	return func(g *Guard) { g.recovery = r }
}

func WithIsolation(i IsolationChecker) Option {
	return func(g *Guard) { g.isolation = i }
}

// WithModeSource makes Execute thread the current mode into contexts that
// do not already carry one.
func WithModeSource(m ModeSource) Option {
	return func(g *Guard) { g.modes = m }
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(g *Guard) { g.defaultTimeout = d }
}

// WithCriticalTypes marks operation types as critical regardless of the
// operation's own flag.
func WithCriticalTypes(types ...string) Option {
	return func(g *Guard) {
		for _, t := range types {
			g.criticalTypes[t] = true
		}
	}
}

func New(tx persistence.Transactor, pipeline Pipeline, trail AuditTrail, opts ...Option) (*Guard, error) {
	if tx == nil {
		return nil, errors.New("transactor is required")
	}
	if pipeline == nil {
		return nil, errors.New("validation pipeline is required")
	}
	if trail == nil {
		return nil, errors.New("audit trail is required")
	}
	g := &Guard{
		tx:             tx,
		pipeline:       pipeline,
		trail:          trail,
		logger:         slog.Default(),
		tracer:         otel.Tracer("bastion/guard"),
		defaultTimeout: DefaultTimeout,
		criticalTypes:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// stageError tags a failure with where in the run it happened.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Execute runs op for the caller described by sc. The body runs at most once
// and only after every pre-check passes; its writes commit only if the body
// and every post-check succeed.
func (g *Guard) Execute(ctx context.Context, op *models.Operation, sc models.SecurityContext) (any, error) {
	if op == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "operation is nil")
	}
	o := *op
	o.RequiredPermissions = append([]string(nil), op.RequiredPermissions...)
	o.IPAllowlist = append([]string(nil), op.IPAllowlist...)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	if g.modes != nil && requestcontext.SystemMode(ctx) == "" {
		ctx = g.modes.Context(ctx)
	}
	ctx = requestcontext.WithOperationID(ctx, o.ID)
	if requestcontext.ClientIP(ctx) == "" && sc.IP != "" {
		ctx = requestcontext.WithClientMetadata(ctx, sc.IP, sc.Session.UserAgent)
	}
	critical := o.Critical || g.criticalTypes[o.Type]

	ctx, span := g.tracer.Start(ctx, "guard.Execute", trace.WithAttributes(
		attribute.String("operation.id", o.ID),
		attribute.String("operation.type", o.Type),
		attribute.String("operation.component", o.Component),
		attribute.Bool("operation.critical", critical),
	))
	defer span.End()

	g.inFlight.Add(1)
	g.metrics.IncInFlight()
	defer func() {
		g.inFlight.Add(-1)
		g.metrics.DecInFlight()
	}()

	g.trail.Record(ctx, audit.Record{
		Type:     audit.EventOperationStarted,
		Context:  sc.Snapshot(),
		Details:  g.details(&o, critical),
		Critical: critical,
	})

	if err := o.Validate(); err != nil {
		return nil, g.reject(ctx, span, &o, sc, critical, OutcomeValidationFailed, err)
	}
	if err := g.gate(ctx, &o, critical); err != nil {
		return nil, g.reject(ctx, span, &o, sc, critical, OutcomeRefused, err)
	}

	timeout := o.Timeout
	if timeout == 0 {
		timeout = g.defaultTimeout
	}
	txCtx, cancel := context.WithTimeout(persistence.WithShardKey(ctx, g.shardKey(&o)), timeout+txSlack)
	defer cancel()

	var result any
	err := g.tx.RunInTx(txCtx, func(ctx context.Context) error {
		if _, err := g.pipeline.ValidatePre(ctx, &o, sc); err != nil {
			return &stageError{stage: StagePre, err: err}
		}
		out, err := g.runBody(ctx, &o, timeout)
		if err != nil {
			return &stageError{stage: StageExec, err: err}
		}
		if _, err := g.pipeline.ValidatePost(ctx, &o, sc, out); err != nil {
			return &stageError{stage: StagePost, err: err}
		}
		result = out
		return nil
	})
	if err == nil {
		g.trail.Record(ctx, audit.Record{
			Type:     audit.EventSuccess,
			Context:  sc.Snapshot(),
			Details:  g.details(&o, critical),
			Critical: critical,
		})
		g.metrics.ObserveGuardOutcome(o.Type, OutcomeSuccess)
		span.SetAttributes(attribute.String("operation.outcome", OutcomeSuccess))
		span.SetStatus(codes.Ok, "")
		return result, nil
	}

	var se *stageError
	if !errors.As(err, &se) {
		se = &stageError{stage: StageTx, err: err}
	}
	if se.stage == StagePre {
		outcome := OutcomeValidationFailed
		if dErrors.Is(se.err, dErrors.CodeUnauthorized) {
			outcome = OutcomeUnauthorized
		}
		return nil, g.reject(ctx, span, &o, sc, critical, outcome, se.err)
	}
	return nil, g.fail(ctx, span, &o, sc, critical, se)
}

// gate refuses critical work in emergency mode and any work on an isolated
// component.
func (g *Guard) gate(ctx context.Context, o *models.Operation, critical bool) error {
	if critical && mode.FromContext(ctx) == mode.Emergency {
		return dErrors.New(dErrors.CodeUnavailable, "critical operations are suspended in emergency mode")
	}
	if g.isolation != nil && o.Component != "" && g.isolation.IsIsolated(o.Component) {
		return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("component %q is isolated", o.Component))
	}
	return nil
}

// runBody runs the body on its own goroutine and stops waiting when timeout
// elapses. A body still running at that point keeps running; the rolled
// back transaction rejects its later writes.
func (g *Guard) runBody(ctx context.Context, o *models.Operation, timeout time.Duration) (any, error) {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.logger.ErrorContext(ctx, "operation body panicked",
					"operation_id", o.ID,
					"operation_type", o.Type,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- outcome{err: fmt.Errorf("operation body panicked: %v", r)}
			}
		}()
		v, err := o.Body(ctx)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		g.metrics.ObserveBodyDuration(o.Type, time.Since(start))
		if out.err != nil {
			return nil, dErrors.Wrap(out.err, dErrors.CodeExecutionFailed, "operation body failed")
		}
		return out.value, nil
	case <-timer.C:
		g.metrics.ObserveBodyDuration(o.Type, time.Since(start))
		return nil, dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeExecutionFailed,
			fmt.Sprintf("operation body exceeded %s", timeout))
	}
}

// reject records a refusal that happened before the body ran.
func (g *Guard) reject(ctx context.Context, span trace.Span, o *models.Operation, sc models.SecurityContext, critical bool, outcome string, err error) error {
	eventType := audit.EventValidationFailed
	severity := audit.SeverityWarning
	if outcome == OutcomeUnauthorized {
		eventType = audit.EventUnauthorized
	}
	details := g.details(o, critical)
	details["outcome"] = outcome
	details["code"] = string(dErrors.CodeOf(err))

	g.trail.Record(ctx, audit.Record{
		Type:     eventType,
		Severity: severity,
		Context:  sc.Snapshot(),
		Reason:   err.Error(),
		Details:  details,
		Critical: critical,
	})
	g.metrics.ObserveGuardOutcome(o.Type, outcome)
	span.SetAttributes(attribute.String("operation.outcome", outcome))
	span.SetStatus(codes.Error, err.Error())
	g.logger.InfoContext(ctx, "guarded operation rejected",
		"operation_id", o.ID,
		"operation_type", o.Type,
		"outcome", outcome,
		"error", err,
	)
	return err
}

// fail handles every failure after pre-checks passed: the transaction has
// rolled back, the failure is recorded with a resource snapshot, and critical
// operations are handed to recovery.
func (g *Guard) fail(ctx context.Context, span trace.Span, o *models.Operation, sc models.SecurityContext, critical bool, se *stageError) error {
	err := se.err
	if !dErrors.Is(err, dErrors.CodeExecutionFailed) {
		err = dErrors.Wrap(err, dErrors.CodeExecutionFailed, "operation failed at "+se.stage)
	}

	resources := g.captureResources(ctx)
	severity := audit.SeverityWarning
	if critical {
		severity = audit.SeverityCritical
	}
	details := g.details(o, critical)
	details["stage"] = se.stage
	details["cause_code"] = string(rootCode(se.err))

	g.trail.Record(ctx, audit.Record{
		Type:      audit.EventFailure,
		Severity:  severity,
		Context:   sc.Snapshot(),
		Reason:    se.err.Error(),
		Details:   details,
		Resources: resources,
		Critical:  critical,
	})
	g.metrics.ObserveGuardOutcome(o.Type, OutcomeFailure)
	span.RecordError(err)
	span.SetAttributes(attribute.String("operation.outcome", OutcomeFailure))
	span.SetStatus(codes.Error, err.Error())
	g.logger.WarnContext(ctx, "guarded operation failed",
		"operation_id", o.ID,
		"operation_type", o.Type,
		"stage", se.stage,
		"critical", critical,
		"error", err,
	)

	if critical && g.recovery != nil {
		g.recovery.HandleCriticalFailure(ctx, err, models.OperationContext{
			OperationID: o.ID,
			Type:        o.Type,
			Component:   o.Component,
			UserID:      sc.UserID,
			Stage:       se.stage,
			Resources:   resources,
		})
	}
	return err
}

func (g *Guard) captureResources(ctx context.Context) *audit.ResourceSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &audit.ResourceSnapshot{
		HeapAllocBytes: ms.HeapAlloc,
		Goroutines:     runtime.NumGoroutine(),
		QueueDepth:     g.trail.QueueDepth(),
		InFlight:       g.inFlight.Load(),
		CapturedAt:     requestcontext.Now(ctx),
	}
}

func (g *Guard) details(o *models.Operation, critical bool) map[string]string {
	d := map[string]string{
		"operation_type": o.Type,
		"critical":       fmt.Sprint(critical),
	}
	if o.Component != "" {
		d["component"] = o.Component
	}
	return d
}

func (g *Guard) shardKey(o *models.Operation) string {
	if o.Component != "" {
		return o.Component
	}
	return o.Type
}

// rootCode is the innermost domain code in err's chain, which names the
// original cause rather than the wrapper the guard adds.
func rootCode(err error) dErrors.Code {
	code := dErrors.CodeOf(err)
	for err != nil {
		var de *dErrors.Error
		if !errors.As(err, &de) {
			break
		}
		code = de.Code
		err = de.Err
	}
	return code
}
