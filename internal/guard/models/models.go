// Package models holds the values a caller submits to the guard.
package models

import (
	"context"
	"time"

	ratelimit "bastion/internal/ratelimit/models"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
)

// Body is the business action the guard protects. It runs at most once per
// Execute and must do its writes through the context it is given.
type Body func(ctx context.Context) (any, error)

// Operation is one unit of work submitted to the guard. The guard takes a copy
// on entry; later changes by the caller are not observed.
type Operation struct {
	ID                  string
	Type                string
	Component           string
	RequiredPermissions []string

	Input          any
	ValidationRule string

	// IPAllowlist restricts callers to these addresses or CIDR prefixes.
	IPAllowlist []string

	// RateLimitKey names the action the attempt is counted against; it
	// defaults to Type. RateLimit nil disables the check.
	RateLimitKey string
	RateLimit    *ratelimit.Limit

	Critical bool
	Timeout  time.Duration
	Body     Body
}

// Validate rejects operations the guard cannot run at all.
func (o *Operation) Validate() error {
	if o == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "operation is nil")
	}
	if o.Type == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "operation type is required")
	}
	if o.Body == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "operation body is nil")
	}
	if o.Timeout < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "operation timeout is negative")
	}
	return nil
}

// RateLimitAction is the action name windows are keyed by.
func (o *Operation) RateLimitAction() string {
	if o.RateLimitKey != "" {
		return o.RateLimitKey
	}
	return o.Type
}

type Session struct {
	ID        string
	Token     string
	UserAgent string
	ExpiresAt time.Time
}

// SecurityContext describes the caller. The guard only reads it.
type SecurityContext struct {
	UserID      string
	IP          string
	Session     Session
	Permissions []string
	RequestedAt time.Time
}

// Subject is who rate limits and audit records are attributed to: the user
// when authenticated, otherwise the caller IP.
func (sc SecurityContext) Subject() string {
	if sc.UserID != "" {
		return sc.UserID
	}
	return sc.IP
}

// Snapshot captures the caller for an audit record.
func (sc SecurityContext) Snapshot() audit.ContextSnapshot {
	return audit.ContextSnapshot{
		UserID:      sc.UserID,
		IP:          sc.IP,
		SessionID:   sc.Session.ID,
		UserAgent:   sc.Session.UserAgent,
		Client:      audit.DescribeClient(sc.Session.UserAgent),
		Permissions: append([]string(nil), sc.Permissions...),
	}
}

// OperationContext is what recovery learns about the operation that failed.
type OperationContext struct {
	OperationID string
	Type        string
	Component   string
	UserID      string
	Stage       string
	Resources   *audit.ResourceSnapshot
}
