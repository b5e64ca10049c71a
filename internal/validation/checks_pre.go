package validation

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	ratelimit "bastion/internal/ratelimit/models"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/requestcontext"
)

func (p *Pipeline) authenticate(ctx context.Context, s Subject) error {
	sc := s.Security
	if sc.UserID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "no authenticated user")
	}
	now := requestcontext.Now(ctx)
	if !sc.Session.ExpiresAt.IsZero() && !now.Before(sc.Session.ExpiresAt) {
		return dErrors.New(dErrors.CodeUnauthorized, "session has expired")
	}
	if p.tokens == nil {
		return nil
	}
	if sc.Session.Token == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "session token missing")
	}
	claims, err := p.tokens.Validate(sc.Session.Token, now)
	if err != nil {
		return err
	}
	if claims.UserID != sc.UserID {
		return dErrors.New(dErrors.CodeUnauthorized, "session token issued to another user")
	}
	if sc.Session.ID != "" && claims.SessionID != sc.Session.ID {
		return dErrors.New(dErrors.CodeUnauthorized, "session token issued for another session")
	}
	return nil
}

// authorize requires every permission the operation names. Granted
// permissions may be globs: "content.*" grants "content.delete".
func (p *Pipeline) authorize(ctx context.Context, s Subject) error {
	var missing []string
	for _, required := range s.Operation.RequiredPermissions {
		if !granted(required, s.Security.Permissions) {
			missing = append(missing, required)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if p.auditor != nil {
		p.auditor.Record(ctx, audit.Record{
			Type:        audit.EventUnauthorizedAccess,
			Severity:    audit.SeverityWarning,
			OperationID: s.Operation.ID,
			Context:     s.Security.Snapshot(),
			Reason:      "missing permissions",
			Details: map[string]string{
				"operation_type": s.Operation.Type,
				"missing":        strings.Join(missing, ","),
			},
		})
	}
	return dErrors.New(dErrors.CodeUnauthorized, "missing permissions: "+strings.Join(missing, ", "))
}

func granted(required string, permissions []string) bool {
	for _, g := range permissions {
		if g == required {
			return true
		}
		if ok, err := path.Match(g, required); err == nil && ok {
			return true
		}
	}
	return false
}

func (p *Pipeline) checkInput(ctx context.Context, s Subject) error {
	var errs []error
	if err := p.structErrors(s.Operation.Input); err != nil {
		errs = append(errs, err)
	}
	if name := s.Operation.ValidationRule; name != "" {
		rule, ok := p.rules.Get(name)
		if !ok {
			errs = append(errs, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown validation rule %q", name)))
		} else if err := rule(ctx, s.Operation.Input); err != nil {
			errs = append(errs, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("rule %q rejected input", name)))
		}
	}
	return errors.Join(errs...)
}

// structErrors runs struct-tag validation. Values that are not structs have
// no tags and pass.
func (p *Pipeline) structErrors(v any) error {
	if v == nil {
		return nil
	}
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "input validation failed")
}

func (p *Pipeline) checkRateLimit(ctx context.Context, s Subject) error {
	op := s.Operation
	if p.limiter == nil || op.RateLimit == nil {
		return nil
	}
	key := ratelimit.Key{
		Subject: s.Security.Subject(),
		Action:  op.RateLimitAction(),
		UserID:  s.Security.UserID,
		IP:      s.Security.IP,
	}
	allowed, err := p.limiter.Check(ctx, key, *op.RateLimit)
	if err != nil {
		return err
	}
	if !allowed {
		return dErrors.New(dErrors.CodeRateLimitExceeded, fmt.Sprintf("rate limit %q exceeded", op.RateLimit.Name))
	}
	return nil
}

func (p *Pipeline) checkIPAllowlist(ctx context.Context, s Subject) error {
	entries := s.Operation.IPAllowlist
	if len(entries) == 0 {
		return nil
	}
	addr, err := netip.ParseAddr(s.Security.IP)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "caller address is not a valid IP")
	}
	addr = addr.Unmap()
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				p.logger.WarnContext(ctx, "ignoring malformed allowlist prefix", "entry", entry, "error", err)
				continue
			}
			if prefix.Contains(addr) {
				return nil
			}
			continue
		}
		allowed, err := netip.ParseAddr(entry)
		if err != nil {
			p.logger.WarnContext(ctx, "ignoring malformed allowlist address", "entry", entry, "error", err)
			continue
		}
		if allowed.Unmap() == addr {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeUnauthorized, "caller address not in operation allowlist")
}
