// Package ports defines shared interfaces for the ratelimit module.
package ports

import (
	"context"
	"log/slog"
	"time"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/attrs"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/requestcontext"
)

// WindowStore owns rate limit windows and serializes updates per key.
type WindowStore interface {
	// Increment atomically consumes one attempt from the window at key.
	// A missing or expired window is replaced by a fresh one first. When the
	// window is already at limit.MaxAttempts nothing is written and allowed
	// is false.
	Increment(ctx context.Context, key string, limit models.Limit, now time.Time) (w models.Window, allowed bool, err error)

	// Get returns the stored window or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) (*models.Window, error)

	// Reset removes the window at key.
	Reset(ctx context.Context, key string) error
}

// AllowlistStore manages rate limit bypass entries.
type AllowlistStore interface {
	// IsAllowlisted reports whether userID has a live user_id entry or ip a
	// live ip entry. Empty arguments match nothing.
	IsAllowlisted(ctx context.Context, userID, ip string) (bool, error)
	Add(ctx context.Context, entry *models.AllowlistEntry) error
	Remove(ctx context.Context, entryType models.AllowlistEntryType, identifier string) error
	List(ctx context.Context) ([]*models.AllowlistEntry, error)
}

// AuditRecorder is the write side of the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// LogAudit writes a security event to both the structured logger and the
// audit trail. The subject and reason are lifted from attrList; every pair
// lands in the record's details.
func LogAudit(ctx context.Context, logger *slog.Logger, recorder AuditRecorder, event audit.EventType, severity audit.Severity, attrList ...any) {
	args := append(attrList, "event", string(event), "log_type", "audit")
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}

	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if recorder == nil {
		return
	}
	recorder.Record(ctx, audit.Record{
		Type:     event,
		Severity: severity,
		Context: audit.ContextSnapshot{
			UserID: attrs.ExtractString(attrList, "subject"),
			IP:     requestcontext.ClientIP(ctx),
		},
		Reason:   attrs.ExtractString(attrList, "reason"),
		Details:  attrs.ToDetails(attrList),
		Critical: severity == audit.SeverityCritical,
	})
}
