package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	dErrors "bastion/pkg/domain-errors"
)

// DefaultSensitivePatterns catch card numbers, private key blocks, bearer
// credentials and password fields in rendered results.
func DefaultSensitivePatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)"(password|secret|api_key)"\s*:\s*"[^"]+"`),
	}
}

// CompilePatterns compiles configured expressions, reporting the first bad one.
func CompilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile sensitive pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (p *Pipeline) checkOutputShape(_ context.Context, s Subject) error {
	return p.structErrors(s.Result)
}

func (p *Pipeline) checkSensitiveData(_ context.Context, s Subject) error {
	if s.Result == nil || len(p.sensitive) == 0 {
		return nil
	}
	rendered, err := json.Marshal(s.Result)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "result cannot be rendered for inspection")
	}
	for _, re := range p.sensitive {
		if re.Match(rendered) {
			return dErrors.New(dErrors.CodeSensitiveDataLeak, fmt.Sprintf("result matches sensitive pattern %s", re.String()))
		}
	}
	return nil
}

func (p *Pipeline) checkIntegrity(_ context.Context, s Subject) error {
	signed, ok := s.Result.(Signed)
	if !ok {
		return nil
	}
	if p.signer == nil {
		return dErrors.New(dErrors.CodeIntegrityFailed, "signed result but no result signer configured")
	}
	match, err := p.signer.VerifyTag(signed.SignedPayload(), signed.IntegrityTag())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrityFailed, "result payload cannot be canonicalized")
	}
	if !match {
		return dErrors.New(dErrors.CodeIntegrityFailed, "result integrity tag mismatch")
	}
	return nil
}
