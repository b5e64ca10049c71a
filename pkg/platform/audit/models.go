package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategorySecurity covers access violations, abuse and integrity findings.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers the lifecycle of guarded operations.
	CategoryOperations EventCategory = "operations"
	// CategoryRecovery covers recovery runs and system mode changes.
	CategoryRecovery EventCategory = "recovery"
)

// EventType names what happened.
type EventType string

const (
	// Guarded operation lifecycle
	EventOperationStarted EventType = "operation.started"
	EventSuccess          EventType = "success"
	EventFailure          EventType = "failure"
	EventUnauthorized     EventType = "unauthorized"
	EventValidationFailed EventType = "validation_failed"

	// Security events
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventPotentialAbuse     EventType = "potential_abuse"
	EventAllowlistBypassed  EventType = "allowlist_bypassed"
	EventIntegrityViolation EventType = "integrity_violation"

	// Recovery and mode events
	EventRecoveryStarted EventType = "recovery.started"
	EventRecoverySuccess EventType = "recovery.success"
	EventRecoveryFailure EventType = "recovery.failure"
	EventModeTransition  EventType = "mode.transition"

	// Emitted on the secondary channel when the primary sink rejects a write.
	EventAuditSinkDegraded EventType = "audit_sink_degraded"
)

var eventCategories = map[EventType]EventCategory{
	EventUnauthorizedAccess: CategorySecurity,
	EventRateLimitExceeded:  CategorySecurity,
	EventPotentialAbuse:     CategorySecurity,
	EventAllowlistBypassed:  CategorySecurity,
	EventIntegrityViolation: CategorySecurity,
	EventUnauthorized:       CategorySecurity,

	EventRecoveryStarted: CategoryRecovery,
	EventRecoverySuccess: CategoryRecovery,
	EventRecoveryFailure: CategoryRecovery,
	EventModeTransition:  CategoryRecovery,
}

// Category returns the EventCategory for this event type.
// Unknown events default to CategoryOperations.
func (e EventType) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Severity levels used for routing and alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ContextSnapshot is the caller state captured when the record was written.
type ContextSnapshot struct {
	UserID      string   `json:"user_id,omitempty"`
	IP          string   `json:"ip,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	UserAgent   string   `json:"user_agent,omitempty"`
	Client      string   `json:"client,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
	SystemMode  string   `json:"system_mode,omitempty"`
}

// ResourceSnapshot captures process load when a guarded operation fails.
type ResourceSnapshot struct {
	HeapAllocBytes uint64    `json:"heap_alloc_bytes"`
	Goroutines     int       `json:"goroutines"`
	QueueDepth     int       `json:"queue_depth"`
	InFlight       int64     `json:"in_flight"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Record is one append-only audit entry. PayloadHash and Tag are computed by
// a Signer over every other field; a record is never mutated after Sign.
type Record struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	Severity      Severity          `json:"severity"`
	Timestamp     time.Time         `json:"timestamp"`
	OperationID   string            `json:"operation_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Context       ContextSnapshot   `json:"context"`
	Reason        string            `json:"reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	Resources     *ResourceSnapshot `json:"resources,omitempty"`
	// Critical routes the record to the secondary channel as well.
	Critical    bool   `json:"critical"`
	KeyID       string `json:"key_id"`
	PayloadHash string `json:"payload_hash"`
	Tag         string `json:"tag"`
}

// Store is the primary, durable append-only sink.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListByOperation(ctx context.Context, operationID string) ([]Record, error)
	ListByType(ctx context.Context, eventType EventType) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}
