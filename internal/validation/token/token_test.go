package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bastion/pkg/domain-errors"
)

var (
	issuedAt  = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	userID    = uuid.NewString()
	sessionID = uuid.NewString()
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("test-signing-key", "test-issuer", "test-audience")
	require.NoError(t, err)
	return svc
}

func TestIssueAndValidate(t *testing.T) {
	svc := newService(t)
	tok, err := svc.Issue(userID, sessionID, issuedAt, time.Hour)
	require.NoError(t, err)

	claims, err := svc.Validate(tok, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.True(t, claims.ExpiresAt.Time.Equal(issuedAt.Add(time.Hour)))
}

func TestValidateRejects(t *testing.T) {
	svc := newService(t)
	valid, err := svc.Issue(userID, sessionID, issuedAt, time.Hour)
	require.NoError(t, err)

	other, err := NewService("another-key", "test-issuer", "test-audience")
	require.NoError(t, err)
	foreign, err := other.Issue(userID, sessionID, issuedAt, time.Hour)
	require.NoError(t, err)

	wrongAudience, err := NewService("test-signing-key", "test-issuer", "elsewhere")
	require.NoError(t, err)
	misaddressed, err := wrongAudience.Issue(userID, sessionID, issuedAt, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		at      time.Time
		message string
	}{
		{"garbage", "invalid-token-string", issuedAt, "invalid token"},
		{"expired", valid, issuedAt.Add(2 * time.Hour), "token has expired"},
		{"foreign signature", foreign, issuedAt, "invalid token"},
		{"wrong audience", misaddressed, issuedAt, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token, tt.at)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNewServiceRequiresKey(t *testing.T) {
	_, err := NewService("", "i", "a")
	assert.Error(t, err)
}
