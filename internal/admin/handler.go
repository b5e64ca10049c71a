// Package admin is the operator HTTP surface: health, metrics, audit
// verification, rate-limit inspection, mode restore and a guarded self-check.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditTrail "bastion/internal/audit"
	"bastion/internal/guard/models"
	"bastion/internal/mode"
	ratelimit "bastion/internal/ratelimit/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/httputil"
	adminmw "bastion/pkg/platform/middleware/admin"
	"bastion/pkg/requestcontext"
)

const (
	selfCheckType       = "bastion.selfcheck"
	selfCheckUser       = "operator"
	selfCheckPermission = "bastion.selfcheck"
	selfCheckSessionTTL = time.Minute
)

type AuditReader interface {
	VerifyAll(ctx context.Context) (*auditTrail.VerificationReport, error)
	Timeline(ctx context.Context, operationID string) (*auditTrail.Timeline, error)
}

type RateLimits interface {
	Inspect(ctx context.Context, storageKey string) (*ratelimit.Window, error)
	ResetRateLimit(ctx context.Context, storageKey string) error
	AddToAllowlist(ctx context.Context, entryType ratelimit.AllowlistEntryType, identifier, reason string, expiresAt *time.Time) (*ratelimit.AllowlistEntry, error)
	RemoveFromAllowlist(ctx context.Context, entryType ratelimit.AllowlistEntryType, identifier string) error
	ListAllowlist(ctx context.Context) ([]*ratelimit.AllowlistEntry, error)
}

type Modes interface {
	Current() mode.Mode
	Transition(ctx context.Context, target mode.Mode, reason string) error
}

// Executor runs operations through the guard.
type Executor interface {
	Execute(ctx context.Context, op *models.Operation, sc models.SecurityContext) (any, error)
}

// SessionIssuer mints the session token the self-check presents when the
// pipeline verifies tokens.
type SessionIssuer interface {
	Issue(userID, sessionID string, now time.Time, expiresIn time.Duration) (string, error)
}

// Isolation is the recovery registry as seen by operators.
type Isolation interface {
	Isolated() []string
	Release(component string)
}

type Handler struct {
	audit     AuditReader
	limits    RateLimits
	modes     Modes
	isolation Isolation
	gatherer  prometheus.Gatherer
	logger    *slog.Logger

	exec   Executor
	issuer SessionIssuer
}

func New(audit AuditReader, limits RateLimits, modes Modes, isolation Isolation, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	return &Handler{
		audit:     audit,
		limits:    limits,
		modes:     modes,
		isolation: isolation,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// WithSelfCheck mounts POST /admin/selfcheck, which runs a no-op operation
// through exec as the operator. issuer may be nil when tokens are not
// verified.
func (h *Handler) WithSelfCheck(exec Executor, issuer SessionIssuer) *Handler {
	h.exec = exec
	h.issuer = issuer
	return h
}

// Register mounts the public probes and, behind the admin token, the
// operator routes.
func (h *Handler) Register(r chi.Router, adminToken string) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(adminToken, h.logger))

		r.Get("/audit/verify", h.handleVerifyAudit)
		r.Get("/audit/operations/{id}", h.handleTimeline)

		r.Get("/ratelimit/allowlist", h.handleListAllowlist)
		r.Post("/ratelimit/allowlist", h.handleAddAllowlist)
		r.Delete("/ratelimit/allowlist", h.handleRemoveAllowlist)
		r.Get("/ratelimit/{key}", h.handleInspectWindow)
		r.Delete("/ratelimit/{key}", h.handleResetWindow)

		r.Get("/mode", h.handleMode)
		r.Post("/mode/restore", h.handleRestore)

		if h.exec != nil {
			r.Post("/selfcheck", h.handleSelfCheck)
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": string(h.modes.Current())})
}

func (h *Handler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.audit.VerifyAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit verification failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, report)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.audit.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(tl.Events) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no audit records for operation"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tl)
}

func (h *Handler) handleInspectWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.limits.Inspect(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, win)
}

func (h *Handler) handleResetWindow(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.limits.ResetRateLimit(r.Context(), key); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "rate limit window reset by operator", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAllowlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.limits.ListAllowlist(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*ratelimit.AllowlistEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleAddAllowlist(w http.ResponseWriter, r *http.Request) {
	var req AddAllowlistRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Type.IsValid() || strings.TrimSpace(req.Identifier) == "" || strings.TrimSpace(req.Reason) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "type, identifier and reason are required"))
		return
	}
	entry, err := h.limits.AddToAllowlist(r.Context(), req.Type, req.Identifier, req.Reason, req.ExpiresAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleRemoveAllowlist(w http.ResponseWriter, r *http.Request) {
	var req RemoveAllowlistRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.limits.RemoveFromAllowlist(r.Context(), req.Type, req.Identifier); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMode(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.modeResponse())
}

// handleRestore steps emergency to degraded, or degraded to normal. Reaching
// normal releases every isolated component.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "reason is required"))
		return
	}

	var target mode.Mode
	switch h.modes.Current() {
	case mode.Emergency:
		target = mode.Degraded
	case mode.Degraded:
		target = mode.Normal
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidTransition, "system is already in normal mode"))
		return
	}
	if err := h.modes.Transition(r.Context(), target, "operator restore: "+req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if target == mode.Normal {
		for _, c := range h.isolation.Isolated() {
			h.isolation.Release(c)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, h.modeResponse())
}

func (h *Handler) modeResponse() ModeResponse {
	isolated := h.isolation.Isolated()
	if isolated == nil {
		isolated = []string{}
	}
	return ModeResponse{Mode: string(h.modes.Current()), Isolated: isolated}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return false
	}
	return true
}

// handleSelfCheck exercises the whole guarded path: audit, pre-checks, a
// transaction and post-checks. It writes nothing.
func (h *Handler) handleSelfCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := requestcontext.Now(ctx)
	sc := models.SecurityContext{
		UserID: selfCheckUser,
		IP:     requestcontext.ClientIP(ctx),
		Session: models.Session{
			ID:        uuid.NewString(),
			UserAgent: requestcontext.UserAgent(ctx),
			ExpiresAt: now.Add(selfCheckSessionTTL),
		},
		Permissions: []string{selfCheckPermission},
		RequestedAt: now,
	}
	if h.issuer != nil {
		tok, err := h.issuer.Issue(sc.UserID, sc.Session.ID, now, selfCheckSessionTTL)
		if err != nil {
			h.logger.ErrorContext(ctx, "self-check session token", "error", err)
			httputil.WriteError(w, err)
			return
		}
		sc.Session.Token = tok
	}

	op := &models.Operation{
		ID:                  uuid.NewString(),
		Type:                selfCheckType,
		RequiredPermissions: []string{selfCheckPermission},
		Body:                func(context.Context) (any, error) { return nil, nil },
	}
	if _, err := h.exec.Execute(ctx, op, sc); err != nil {
		h.logger.WarnContext(ctx, "self-check failed", "operation_id", op.ID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SelfCheckResponse{
		OperationID: op.ID,
		Mode:        string(h.modes.Current()),
	})
}
