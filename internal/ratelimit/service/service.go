// Package service implements fixed-window attempt limiting with abuse
// escalation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"bastion/internal/notify"
	"bastion/internal/platform/metrics"
	"bastion/internal/ratelimit/models"
	"bastion/internal/ratelimit/ports"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/sentinel"
	"bastion/pkg/requestcontext"
)

const (
	DefaultAbuseThreshold = 10
	DefaultAbuseWindow    = 15 * time.Minute
)

type Service struct {
	windows   ports.WindowStore
	allowlist ports.AllowlistStore
	auditor   ports.AuditRecorder
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	abuse     models.Limit
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(auditor ports.AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAllowlist lets allowlisted subjects bypass every limit.
func WithAllowlist(store ports.AllowlistStore) Option {
	return func(s *Service) {
		s.allowlist = store
	}
}

// WithAbuseLimit sets how many rejections within window mark a subject as
// potentially abusive.
func WithAbuseLimit(threshold int, window time.Duration) Option {
	return func(s *Service) {
		s.abuse = models.Limit{Name: "abuse", MaxAttempts: threshold, Window: window}
	}
}

func New(windows ports.WindowStore, opts ...Option) (*Service, error) {
	if windows == nil {
		return nil, fmt.Errorf("window store is required")
	}
	svc := &Service{
		windows: windows,
		logger:  slog.Default(),
		abuse:   models.Limit{Name: "abuse", MaxAttempts: DefaultAbuseThreshold, Window: DefaultAbuseWindow},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if err := svc.abuse.Validate(); err != nil {
		return nil, fmt.Errorf("abuse limit: %w", err)
	}
	return svc, nil
}

// Check consumes one attempt for key under limit. It reports false once the
// window holds limit.MaxAttempts attempts; a rejected attempt is not counted.
func (s *Service) Check(ctx context.Context, key models.Key, limit models.Limit) (bool, error) {
	if err := limit.Validate(); err != nil {
		return false, err
	}
	bypass, err := s.isAllowlisted(ctx, key)
	if err != nil {
		return false, err
	}
	if bypass {
		ports.LogAudit(ctx, s.logger, s.auditor, audit.EventAllowlistBypassed, audit.SeverityInfo,
			"subject", key.Subject,
			"action", key.Action,
			"limit", limit.Name,
		)
		return true, nil
	}

	now := requestcontext.Now(ctx)
	w, allowed, err := s.windows.Increment(ctx, key.String(), limit, now)
	if err != nil {
		return false, translate(err, "failed to check rate limit")
	}
	s.metrics.ObserveRateLimit(limit.Name, allowed)
	if !allowed {
		s.onRejected(ctx, key, limit, w)
	}
	return allowed, nil
}

func (s *Service) onRejected(ctx context.Context, key models.Key, limit models.Limit, w models.Window) {
	ports.LogAudit(ctx, s.logger, s.auditor, audit.EventRateLimitExceeded, audit.SeverityWarning,
		"subject", key.Subject,
		"action", key.Action,
		"limit", limit.Name,
		"max_attempts", limit.MaxAttempts,
		"window_seconds", int(limit.Window.Seconds()),
		"count", w.Count,
		"reason", "attempt limit reached",
	)

	aw, counted, err := s.windows.Increment(ctx, models.AbuseKey(key.Subject), s.abuse, requestcontext.Now(ctx))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record abuse attempt", "subject", key.Subject, "error", err)
		return
	}
	// Only the attempt that reaches the threshold escalates; later ones are
	// rejected by the abuse window itself until it expires.
	if !counted || aw.Count != s.abuse.MaxAttempts {
		return
	}
	s.metrics.IncAbuseEscalations()
	ports.LogAudit(ctx, s.logger, s.auditor, audit.EventPotentialAbuse, audit.SeverityCritical,
		"subject", key.Subject,
		"action", key.Action,
		"rejections", aw.Count,
		"window_seconds", int(s.abuse.Window.Seconds()),
		"reason", "repeated rate limit violations",
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, notify.Notification{
			Kind:       notify.KindPotentialAbuse,
			Subject:    key.Subject,
			Message:    "subject exceeded rate limits " + strconv.Itoa(aw.Count) + " times",
			Details:    map[string]string{"action": key.Action, "limit": limit.Name},
			OccurredAt: requestcontext.Now(ctx),
		})
	}
}

// Remaining reports how many attempts are left in the current window.
func (s *Service) Remaining(ctx context.Context, key models.Key, limit models.Limit) (int, error) {
	w, err := s.current(ctx, key.String())
	if err != nil {
		return 0, err
	}
	if w == nil {
		return limit.MaxAttempts, nil
	}
	return max(limit.MaxAttempts-w.Count, 0), nil
}

// ResetIn reports how long until the current window expires. Zero means no
// window is active.
func (s *Service) ResetIn(ctx context.Context, key models.Key, limit models.Limit) (time.Duration, error) {
	w, err := s.current(ctx, key.String())
	if err != nil || w == nil {
		return 0, err
	}
	return w.ExpiresAt.Sub(requestcontext.Now(ctx)), nil
}

// CheckMulti evaluates limits in order and stops at the first violation.
// Limits after the violated one are not consumed.
func (s *Service) CheckMulti(ctx context.Context, subject string, limits []models.Limit) (*models.MultiResult, error) {
	result := &models.MultiResult{Allowed: true, Checked: make([]string, 0, len(limits))}
	for _, limit := range limits {
		allowed, err := s.Check(ctx, models.Key{Subject: subject, Action: limit.Name}, limit)
		if err != nil {
			return nil, err
		}
		result.Checked = append(result.Checked, limit.Name)
		if !allowed {
			result.Allowed = false
			result.Violated = limit.Name
			return result, nil
		}
	}
	return result, nil
}

// Inspect returns the raw window stored under key.
func (s *Service) Inspect(ctx context.Context, storageKey string) (*models.Window, error) {
	w, err := s.windows.Get(ctx, storageKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no window for key")
	}
	if err != nil {
		return nil, translate(err, "failed to load window")
	}
	return w, nil
}

// ResetRateLimit removes the window stored under key.
func (s *Service) ResetRateLimit(ctx context.Context, storageKey string) error {
	if err := s.windows.Reset(ctx, storageKey); err != nil {
		return translate(err, "failed to reset window")
	}
	ports.LogAudit(ctx, s.logger, nil, "rate_limit_reset", audit.SeverityInfo, "key", storageKey)
	return nil
}

func (s *Service) AddToAllowlist(ctx context.Context, entryType models.AllowlistEntryType, identifier, reason string, expiresAt *time.Time) (*models.AllowlistEntry, error) {
	if s.allowlist == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "allowlist not configured")
	}
	entry, err := models.NewAllowlistEntry(entryType, identifier, reason, requestcontext.Now(ctx), expiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.allowlist.Add(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add allowlist entry")
	}
	ports.LogAudit(ctx, s.logger, nil, "rate_limit_allowlist_added", audit.SeverityInfo,
		"subject", identifier,
		"type", string(entryType),
		"reason", reason,
	)
	return entry, nil
}

func (s *Service) RemoveFromAllowlist(ctx context.Context, entryType models.AllowlistEntryType, identifier string) error {
	if s.allowlist == nil {
		return dErrors.New(dErrors.CodeUnavailable, "allowlist not configured")
	}
	if err := s.allowlist.Remove(ctx, entryType, identifier); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove allowlist entry")
	}
	return nil
}

func (s *Service) ListAllowlist(ctx context.Context) ([]*models.AllowlistEntry, error) {
	if s.allowlist == nil {
		return nil, nil
	}
	entries, err := s.allowlist.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list allowlist entries")
	}
	return entries, nil
}

func (s *Service) isAllowlisted(ctx context.Context, key models.Key) (bool, error) {
	if s.allowlist == nil {
		return false, nil
	}
	userID, ip := key.Caller()
	ok, err := s.allowlist.IsAllowlisted(ctx, userID, ip)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check allowlist")
	}
	return ok, nil
}

// current returns the live window at key, or nil when there is none.
func (s *Service) current(ctx context.Context, storageKey string) (*models.Window, error) {
	w, err := s.windows.Get(ctx, storageKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "failed to load window")
	}
	if w.Expired(requestcontext.Now(ctx)) {
		return nil, nil
	}
	return w, nil
}

// translate keeps invariant violations visible and wraps everything else as
// internal.
func translate(err error, msg string) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
