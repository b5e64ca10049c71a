package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the guarded executor.
// Methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	GuardOutcomes      *prometheus.CounterVec
	GuardBodyDuration  *prometheus.HistogramVec
	GuardInFlight      prometheus.Gauge
	RateLimitDecisions *prometheus.CounterVec
	AbuseEscalations   prometheus.Counter
	AuditRecords       *prometheus.CounterVec
	AuditSinkDegraded  prometheus.Counter
	AuditSecondaryDrop prometheus.Counter
	AuditCorrupt       prometheus.Counter
	RecoveryRuns       *prometheus.CounterVec
	RecoveryStepTime   *prometheus.HistogramVec
}

// New creates and registers all metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GuardOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_guard_operations_total",
			Help: "Guarded operations by type and outcome",
		}, []string{"type", "outcome"}),
		GuardBodyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_guard_body_duration_seconds",
			Help:    "Wall-clock time spent in operation bodies",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		GuardInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_guard_in_flight",
			Help: "Guarded operations currently executing",
		}),
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_ratelimit_decisions_total",
			Help: "Rate limit decisions by limit name and result",
		}, []string{"limit", "result"}),
		AbuseEscalations: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_ratelimit_abuse_escalations_total",
			Help: "Subjects whose abuse counter crossed the threshold",
		}),
		AuditRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_audit_records_total",
			Help: "Audit records written to the primary sink by type",
		}, []string{"type"}),
		AuditSinkDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_audit_sink_degraded_total",
			Help: "Primary audit writes that fell back to the secondary channel",
		}),
		AuditSecondaryDrop: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_audit_secondary_dropped_total",
			Help: "Records the secondary audit sink rejected",
		}),
		AuditCorrupt: f.NewCounter(prometheus.CounterOpts{
			Name: "bastion_audit_corrupt_records_total",
			Help: "Stored audit records that failed integrity verification",
		}),
		RecoveryRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_recovery_runs_total",
			Help: "Recovery runs by incident type and outcome",
		}, []string{"incident", "outcome"}),
		RecoveryStepTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_recovery_step_duration_seconds",
			Help:    "Duration of individual recovery steps",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
	}
}

func (m *Metrics) ObserveGuardOutcome(opType, outcome string) {
	if m == nil {
		return
	}
	m.GuardOutcomes.WithLabelValues(opType, outcome).Inc()
}

func (m *Metrics) ObserveBodyDuration(opType string, d time.Duration) {
	if m == nil {
		return
	}
	m.GuardBodyDuration.WithLabelValues(opType).Observe(d.Seconds())
}

func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.GuardInFlight.Inc()
}

func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.GuardInFlight.Dec()
}

func (m *Metrics) ObserveRateLimit(limit string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	m.RateLimitDecisions.WithLabelValues(limit, result).Inc()
}

func (m *Metrics) IncAbuseEscalations() {
	if m == nil {
		return
	}
	m.AbuseEscalations.Inc()
}

func (m *Metrics) IncAuditRecord(eventType string) {
	if m == nil {
		return
	}
	m.AuditRecords.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncAuditSinkDegraded() {
	if m == nil {
		return
	}
	m.AuditSinkDegraded.Inc()
}

func (m *Metrics) AddAuditSecondaryDropped(n int) {
	if m == nil {
		return
	}
	m.AuditSecondaryDrop.Add(float64(n))
}

func (m *Metrics) IncAuditCorrupt() {
	if m == nil {
		return
	}
	m.AuditCorrupt.Inc()
}

func (m *Metrics) ObserveRecovery(incident, outcome string) {
	if m == nil {
		return
	}
	m.RecoveryRuns.WithLabelValues(incident, outcome).Inc()
}

func (m *Metrics) ObserveRecoveryStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.RecoveryStepTime.WithLabelValues(step).Observe(d.Seconds())
}
