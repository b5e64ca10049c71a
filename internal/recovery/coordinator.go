// Package recovery runs the recovery state machine for critical failures:
// snapshot, isolate, execute steps, verify integrity, log the outcome.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auditTrail "bastion/internal/audit"
	"bastion/internal/guard/models"
	"bastion/internal/mode"
	"bastion/internal/notify"
	"bastion/internal/platform/metrics"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
)

// AuditTrail is the slice of the trail recovery writes to and reads from.
type AuditTrail interface {
	Record(ctx context.Context, rec audit.Record)
	Timeline(ctx context.Context, operationID string) (*auditTrail.Timeline, error)
}

type ModeController interface {
	Current() mode.Mode
	Transition(ctx context.Context, target mode.Mode, reason string) error
}

type Isolator interface {
	Isolate(component string)
	Release(component string)
	IsIsolated(component string) bool
}

// EmergencyProcedure is the last resort after a failed recovery.
type EmergencyProcedure func(ctx context.Context, report *Report) error

type Coordinator struct {
	snapshots *Snapshotter
	trail     AuditTrail
	modes     ModeController
	isolation Isolator
	plans     map[IncidentType]Plan

	notifier     notify.Notifier
	emergency    EmergencyProcedure
	logger       *slog.Logger
	catastrophic *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	// one recovery at a time so before/after snapshots bracket a single run
	mu sync.Mutex
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithCatastrophicLogger sets the channel for failures of the emergency
// procedure itself.
func WithCatastrophicLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.catastrophic = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithIsolation(i Isolator) Option {
	return func(c *Coordinator) { c.isolation = i }
}

// WithPlans adds or replaces the plans for the given incident types.
func WithPlans(plans map[IncidentType]Plan) Option {
	return func(c *Coordinator) {
		for k, v := range plans {
			c.plans[k] = v
		}
	}
}

func WithEmergencyProcedure(p EmergencyProcedure) Option {
	return func(c *Coordinator) { c.emergency = p }
}

func New(snapshots *Snapshotter, trail AuditTrail, modes ModeController, opts ...Option) (*Coordinator, error) {
	if snapshots == nil {
		return nil, errors.New("snapshotter is required")
	}
	if trail == nil {
		return nil, errors.New("audit trail is required")
	}
	if modes == nil {
		return nil, errors.New("mode controller is required")
	}
	c := &Coordinator{
		snapshots: snapshots,
		trail:     trail,
		modes:     modes,
		isolation: NewRegistry(),
		plans:     make(map[IncidentType]Plan),
		logger:    slog.Default(),
		tracer:    otel.Tracer("bastion/recovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catastrophic == nil {
		c.catastrophic = c.logger.With("channel", "catastrophic")
	}
	return c, nil
}

// IsIsolated reports whether recovery has taken component out of service.
func (c *Coordinator) IsIsolated(component string) bool {
	return c.isolation.IsIsolated(component)
}

// Classify maps a failure cause to the incident type that handles it.
func Classify(cause error) IncidentType {
	switch {
	case dErrors.HasCode(cause, dErrors.CodeIntegrityFailed):
		return IncidentIntegrityBreach
	case dErrors.HasCode(cause, dErrors.CodeSensitiveDataLeak):
		return IncidentDataExposure
	case dErrors.HasCode(cause, dErrors.CodeAuditSinkDegraded):
		return IncidentAuditDegraded
	case errors.Is(cause, context.DeadlineExceeded), dErrors.HasCode(cause, dErrors.CodeTimeout):
		return IncidentTimeout
	default:
		return IncidentExecutionFailure
	}
}

// HandleCriticalFailure runs recovery for a failed critical operation. It
// never returns an error: the caller has already been answered, so a failed
// recovery is only logged and alerted.
func (c *Coordinator) HandleCriticalFailure(ctx context.Context, cause error, oc models.OperationContext) {
	rc := RecoveryContext{
		Incident:  Classify(cause),
		Cause:     cause,
		Operation: oc,
	}
	if oc.OperationID != "" {
		tl, err := c.trail.Timeline(ctx, oc.OperationID)
		if err != nil {
			c.logger.WarnContext(ctx, "operation timeline unavailable", "operation_id", oc.OperationID, "error", err)
		} else {
			rc.Timeline = tl
		}
	}
	if _, err := c.ExecuteCriticalRecovery(ctx, rc.Incident, rc); err != nil {
		c.logger.ErrorContext(ctx, "critical recovery failed",
			"incident", string(rc.Incident),
			"operation_id", oc.OperationID,
			"error", err,
		)
	}
}

// ExecuteCriticalRecovery runs the plan for incident. Cancelling ctx does not
// interrupt a run in progress.
func (c *Coordinator) ExecuteCriticalRecovery(ctx context.Context, incident IncidentType, rc RecoveryContext) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	ctx, span := c.tracer.Start(ctx, "recovery.Execute", trace.WithAttributes(
		attribute.String("recovery.incident", string(incident)),
		attribute.String("operation.id", rc.Operation.OperationID),
	))
	defer span.End()

	rc.Incident = incident
	plan := c.plans[incident]
	report := &Report{Incident: incident, Component: rc.Operation.Component, Steps: []StepResult{}}

	c.trail.Record(ctx, audit.Record{
		Type:        audit.EventRecoveryStarted,
		Severity:    audit.SeverityWarning,
		OperationID: rc.Operation.OperationID,
		Reason:      causeText(rc.Cause),
		Details:     startDetails(rc),
		Critical:    true,
	})
	c.logger.WarnContext(ctx, "recovery started",
		"incident", string(incident),
		"operation_id", rc.Operation.OperationID,
	)

	before, err := c.snapshots.Capture(ctx)
	if err != nil {
		return c.finish(ctx, span, report, rc, dErrors.Wrap(err, dErrors.CodeRecoveryFailed, "snapshot before recovery failed"))
	}
	report.Before = &before

	if err := c.isolate(ctx, report, c.components(plan, rc)); err != nil {
		return c.finish(ctx, span, report, rc, err)
	}
	if c.modes.Current() == mode.Normal {
		c.transition(ctx, mode.Degraded, "recovery started: "+string(incident))
	}

	affected, err := c.runSteps(ctx, report, plan.Steps, rc)
	if err != nil {
		return c.finish(ctx, span, report, rc, err)
	}

	after, err := c.snapshots.Capture(ctx)
	if err != nil {
		return c.finish(ctx, span, report, rc, dErrors.Wrap(err, dErrors.CodeRecoveryFailed, "snapshot after recovery failed"))
	}
	report.After = &after
	report.Divergences = Compare(before, after)
	for i := range report.Divergences {
		d := &report.Divergences[i]
		d.Explained = affected[d.Field]
		if !d.Explained {
			c.logger.WarnContext(ctx, "unexplained state divergence after recovery",
				"incident", string(incident),
				"field", d.Field,
				"before", d.Before,
				"after", d.After,
			)
		}
	}
	return c.finish(ctx, span, report, rc, nil)
}

func (c *Coordinator) components(plan Plan, rc RecoveryContext) []string {
	out := append([]string(nil), plan.Components...)
	if comp := rc.Operation.Component; comp != "" && !slices.Contains(out, comp) {
		out = append(out, comp)
	}
	return out
}

func (c *Coordinator) isolate(ctx context.Context, report *Report, components []string) error {
	for _, comp := range components {
		c.isolation.Isolate(comp)
		if !c.isolation.IsIsolated(comp) {
			return dErrors.New(dErrors.CodeRecoveryFailed, fmt.Sprintf("isolation of %q could not be verified", comp))
		}
		report.Isolated = append(report.Isolated, comp)
		c.logger.InfoContext(ctx, "component isolated", "component", comp)
	}
	return nil
}

// runSteps stops at the first failing step. It returns the snapshot fields
// the executed steps declared.
func (c *Coordinator) runSteps(ctx context.Context, report *Report, steps []Step, rc RecoveryContext) (map[string]bool, error) {
	affected := make(map[string]bool)
	for _, step := range steps {
		start := time.Now()
		err := c.runStep(ctx, step, rc)
		d := time.Since(start)
		c.metrics.ObserveRecoveryStep(step.Name, d)

		res := StepResult{Name: step.Name, Duration: d}
		if err != nil {
			res.Error = err.Error()
		}
		report.Steps = append(report.Steps, res)
		for _, f := range step.Affects {
			affected[f] = true
		}
		if err != nil {
			return affected, dErrors.Wrap(err, dErrors.CodeRecoveryFailed, fmt.Sprintf("recovery step %s failed", step.Name))
		}
	}
	return affected, nil
}

func (c *Coordinator) runStep(ctx context.Context, step Step, rc RecoveryContext) (err error) {
	ctx, span := c.tracer.Start(ctx, "recovery.step", trace.WithAttributes(attribute.String("recovery.step", step.Name)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "recovery step panicked",
				"step", step.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("recovery step panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return step.Run(ctx, rc)
}

// finish is LogOutcome: it records the terminal outcome and applies its
// consequences for isolation, mode and alerting.
func (c *Coordinator) finish(ctx context.Context, span trace.Span, report *Report, rc RecoveryContext, err error) (*Report, error) {
	details := outcomeDetails(report)

	if err == nil {
		report.Outcome = OutcomeSuccess
		for _, comp := range report.Isolated {
			c.isolation.Release(comp)
		}
		if c.modes.Current() == mode.Degraded {
			c.transition(ctx, mode.Normal, "recovery succeeded: "+string(report.Incident))
		}
		c.trail.Record(ctx, audit.Record{
			Type:        audit.EventRecoverySuccess,
			Severity:    audit.SeverityInfo,
			OperationID: rc.Operation.OperationID,
			Details:     details,
		})
		c.metrics.ObserveRecovery(string(report.Incident), OutcomeSuccess)
		span.SetStatus(codes.Ok, "")
		c.logger.InfoContext(ctx, "recovery succeeded", "incident", string(report.Incident))
		return report, nil
	}

	report.Outcome = OutcomeFailure
	report.Err = err
	c.trail.Record(ctx, audit.Record{
		Type:        audit.EventRecoveryFailure,
		Severity:    audit.SeverityCritical,
		OperationID: rc.Operation.OperationID,
		Reason:      err.Error(),
		Details:     details,
		Critical:    true,
	})
	if c.modes.Current() == mode.Normal {
		c.transition(ctx, mode.Degraded, "recovery failed: "+string(report.Incident))
	}
	if c.modes.Current() == mode.Degraded {
		c.transition(ctx, mode.Emergency, "recovery failed: "+string(report.Incident))
	}
	c.metrics.ObserveRecovery(string(report.Incident), OutcomeFailure)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if c.notifier != nil {
		c.notifier.Notify(ctx, notify.Notification{
			Kind:    notify.KindRecoveryFailure,
			Subject: string(report.Incident),
			Message: err.Error(),
			Details: details,
		})
	}
	c.runEmergency(ctx, report)
	return report, err
}

func (c *Coordinator) transition(ctx context.Context, target mode.Mode, reason string) {
	if err := c.modes.Transition(ctx, target, reason); err != nil {
		c.logger.ErrorContext(ctx, "mode transition failed", "target", string(target), "error", err)
	}
}

func (c *Coordinator) runEmergency(ctx context.Context, report *Report) {
	if c.emergency == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logCatastrophic(ctx, "emergency procedure panicked", "incident", string(report.Incident), "panic", r)
		}
	}()
	if err := c.emergency(ctx, report); err != nil {
		c.logCatastrophic(ctx, "emergency procedure failed", "incident", string(report.Incident), "error", err)
	}
}

// logCatastrophic must never raise, whatever the handler behind the logger
// does.
func (c *Coordinator) logCatastrophic(ctx context.Context, msg string, args ...any) {
	defer func() { _ = recover() }()
	c.catastrophic.ErrorContext(ctx, msg, args...)
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func startDetails(rc RecoveryContext) map[string]string {
	d := map[string]string{"incident": string(rc.Incident)}
	if rc.Operation.Type != "" {
		d["operation_type"] = rc.Operation.Type
	}
	if rc.Operation.Component != "" {
		d["component"] = rc.Operation.Component
	}
	if rc.Operation.Stage != "" {
		d["stage"] = rc.Operation.Stage
	}
	if rc.Timeline != nil {
		d["timeline_events"] = fmt.Sprint(len(rc.Timeline.Events))
		d["timeline_complete"] = fmt.Sprint(rc.Timeline.Complete())
	}
	return d
}

func outcomeDetails(report *Report) map[string]string {
	d := map[string]string{"incident": string(report.Incident)}
	names := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		names = append(names, s.Name)
	}
	if len(names) > 0 {
		d["steps"] = strings.Join(names, ",")
	}
	if len(report.Isolated) > 0 {
		d["isolated"] = strings.Join(report.Isolated, ",")
	}
	var unexplained []string
	for _, dv := range report.Unexplained() {
		unexplained = append(unexplained, dv.Field)
	}
	if len(unexplained) > 0 {
		d["unexplained_divergence"] = strings.Join(unexplained, ",")
	}
	return d
}
