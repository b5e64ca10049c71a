package recovery

import (
	"context"
	"time"

	auditTrail "bastion/internal/audit"
	"bastion/internal/guard/models"
)

// IncidentType classifies what went wrong and selects the recovery plan.
type IncidentType string

const (
	IncidentExecutionFailure IncidentType = "execution_failure"
	IncidentIntegrityBreach  IncidentType = "integrity_breach"
	IncidentDataExposure     IncidentType = "data_exposure"
	IncidentTimeout          IncidentType = "timeout"
	IncidentAuditDegraded    IncidentType = "audit_degraded"
)

// Snapshot fields. Steps name the ones they may change in Step.Affects.
const (
	FieldPersistence = "persistence"
	FieldCache       = "cache"
	FieldSecurity    = "security"
)

// Snapshot is a point-in-time reference to the state of each monitored
// subsystem. Two snapshots are compared, never mutated.
type Snapshot struct {
	Persistence string    `json:"persistence"`
	Cache       string    `json:"cache"`
	Security    string    `json:"security"`
	TakenAt     time.Time `json:"taken_at"`
}

func (s Snapshot) field(name string) string {
	switch name {
	case FieldPersistence:
		return s.Persistence
	case FieldCache:
		return s.Cache
	case FieldSecurity:
		return s.Security
	}
	return ""
}

// Divergence is one snapshot field that changed across a recovery run.
// Explained is true when an executed step declared that it affects Field.
type Divergence struct {
	Field     string `json:"field"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Explained bool   `json:"explained"`
}

// Compare diffs two snapshots field by field.
func Compare(before, after Snapshot) []Divergence {
	var out []Divergence
	for _, f := range []string{FieldPersistence, FieldCache, FieldSecurity} {
		if b, a := before.field(f), after.field(f); b != a {
			out = append(out, Divergence{Field: f, Before: b, After: a})
		}
	}
	return out
}

// Step is one forward-only recovery action. Steps must be idempotent; a
// failed run is not undone.
type Step struct {
	Name    string
	Affects []string
	Run     func(ctx context.Context, rc RecoveryContext) error
}

// Plan is what recovery does for one incident type.
type Plan struct {
	Components []string
	Steps      []Step
}

// RecoveryContext is everything a recovery run knows about its incident.
type RecoveryContext struct {
	Incident  IncidentType
	Cause     error
	Operation models.OperationContext
	Timeline  *auditTrail.Timeline
}

type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Outcome of a recovery run.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Report describes one recovery run.
type Report struct {
	Incident    IncidentType `json:"incident"`
	Component   string       `json:"component,omitempty"`
	Outcome     string       `json:"outcome"`
	Before      *Snapshot    `json:"before,omitempty"`
	After       *Snapshot    `json:"after,omitempty"`
	Isolated    []string     `json:"isolated,omitempty"`
	Steps       []StepResult `json:"steps"`
	Divergences []Divergence `json:"divergences,omitempty"`
	Err         error        `json:"-"`
}

// Unexplained returns the divergences no executed step accounts for.
func (r *Report) Unexplained() []Divergence {
	var out []Divergence
	for _, d := range r.Divergences {
		if !d.Explained {
			out = append(out, d)
		}
	}
	return out
}
