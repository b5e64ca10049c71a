// Package validation runs the ordered pre- and post-execution checks around a
// guarded operation.
package validation

import (
	"context"
	"errors"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"

	"bastion/internal/guard/models"
	ratelimit "bastion/internal/ratelimit/models"
	"bastion/internal/validation/token"
	audit "bastion/pkg/platform/audit"
)

// Phase is when a check runs relative to the operation body.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Check names, in the order they run.
const (
	CheckAuthentication = "authentication"
	CheckAuthorization  = "authorization"
	CheckInput          = "input"
	CheckRateLimit      = "rate_limit"
	CheckIPAllowlist    = "ip_allowlist"

	CheckOutputShape   = "output_shape"
	CheckSensitiveData = "sensitive_data"
	CheckIntegrity     = "integrity"
)

// Subject is what a check inspects. Result is only set in the post phase.
type Subject struct {
	Operation *models.Operation
	Security  models.SecurityContext
	Result    any
}

// Check is one named validation step. A fail-fast check that fails stops its
// phase; any other failure is collected and the phase continues.
type Check struct {
	Name     string
	FailFast bool
	Run      func(ctx context.Context, s Subject) error
}

// CheckResult is the outcome of one executed check.
type CheckResult struct {
	CheckName string `json:"check"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message,omitempty"`
}

// Result aggregates the checks of one phase.
type Result struct {
	Phase  Phase         `json:"phase"`
	Checks []CheckResult `json:"checks"`
	Errors []error       `json:"-"`
}

func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Err is the first failure joined with any others, or nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return errors.Join(r.Errors...)
}

// RateLimiter is the slice of the rate limit service the pipeline consults.
type RateLimiter interface {
	Check(ctx context.Context, key ratelimit.Key, limit ratelimit.Limit) (bool, error)
}

// AuditRecorder is the write side of the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// Signed results carry an integrity tag over their own payload.
type Signed interface {
	SignedPayload() any
	IntegrityTag() string
}

// Pipeline holds the two ordered check lists.
type Pipeline struct {
	pre  []Check
	post []Check

	logger    *slog.Logger
	auditor   AuditRecorder
	limiter   RateLimiter
	tokens    *token.Service
	rules     *Registry
	validate  *validator.Validate
	sensitive []*regexp.Regexp
	signer    *audit.Signer
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithAuditor(a AuditRecorder) Option {
	return func(p *Pipeline) { p.auditor = a }
}

func WithRateLimiter(l RateLimiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithTokenVerifier makes authentication validate the session token.
func WithTokenVerifier(t *token.Service) Option {
	return func(p *Pipeline) { p.tokens = t }
}

func WithRules(r *Registry) Option {
	return func(p *Pipeline) { p.rules = r }
}

// WithSensitivePatterns replaces the default leak patterns.
func WithSensitivePatterns(patterns []*regexp.Regexp) Option {
	return func(p *Pipeline) { p.sensitive = patterns }
}

// WithResultSigner enables verification of Signed results.
func WithResultSigner(s *audit.Signer) Option {
	return func(p *Pipeline) { p.signer = s }
}

// New builds the pipeline with its fixed check order.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:    slog.Default(),
		rules:     NewRegistry(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sensitive: DefaultSensitivePatterns(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pre = []Check{
		{Name: CheckAuthentication, FailFast: true, Run: p.authenticate},
		{Name: CheckAuthorization, FailFast: true, Run: p.authorize},
		{Name: CheckInput, FailFast: false, Run: p.checkInput},
		{Name: CheckRateLimit, FailFast: true, Run: p.checkRateLimit},
		{Name: CheckIPAllowlist, FailFast: true, Run: p.checkIPAllowlist},
	}
	p.post = []Check{
		{Name: CheckOutputShape, FailFast: false, Run: p.checkOutputShape},
		{Name: CheckSensitiveData, FailFast: true, Run: p.checkSensitiveData},
		{Name: CheckIntegrity, FailFast: true, Run: p.checkIntegrity},
	}
	return p
}

// ValidatePre runs the pre-execution checks.
func (p *Pipeline) ValidatePre(ctx context.Context, op *models.Operation, sc models.SecurityContext) (*Result, error) {
	res := p.run(ctx, PhasePre, p.pre, Subject{Operation: op, Security: sc})
	return res, res.Err()
}

// ValidatePost runs the result checks.
func (p *Pipeline) ValidatePost(ctx context.Context, op *models.Operation, sc models.SecurityContext, result any) (*Result, error) {
	res := p.run(ctx, PhasePost, p.post, Subject{Operation: op, Security: sc, Result: result})
	return res, res.Err()
}

func (p *Pipeline) run(ctx context.Context, phase Phase, checks []Check, subj Subject) *Result {
	res := &Result{Phase: phase, Checks: make([]CheckResult, 0, len(checks))}
	for _, c := range checks {
		err := c.Run(ctx, subj)
		if err == nil {
			res.Checks = append(res.Checks, CheckResult{CheckName: c.Name, Passed: true})
			continue
		}
		res.Checks = append(res.Checks, CheckResult{CheckName: c.Name, Message: err.Error()})
		res.Errors = append(res.Errors, err)
		p.logger.InfoContext(ctx, "validation check failed",
			"phase", string(phase),
			"check", c.Name,
			"operation_type", subj.Operation.Type,
			"error", err,
		)
		if c.FailFast {
			break
		}
	}
	return res
}
