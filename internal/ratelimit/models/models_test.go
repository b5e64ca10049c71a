package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bastion/pkg/domain-errors"
)

func TestWindowValidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := NewWindow("rl:a:b", time.Minute, now)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Window)
	}{
		{"unknown version", func(w *Window) { w.Version = 2 }},
		{"expiry before start", func(w *Window) { w.ExpiresAt = w.StartedAt.Add(-time.Second) }},
		{"expiry equals start", func(w *Window) { w.ExpiresAt = w.StartedAt }},
		{"negative count", func(w *Window) { w.Count = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid
			tt.mutate(&w)
			err := w.Validate()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestWindowExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow("k", time.Minute, now)
	assert.False(t, w.Expired(now.Add(59*time.Second)))
	assert.True(t, w.Expired(now.Add(time.Minute)), "expiry instant belongs to the next window")
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "rl:content.delete:u-1", Key{Subject: "u-1", Action: "content.delete"}.String())
	assert.Equal(t, "rl:login:user%3Aadmin", Key{Subject: "user:admin", Action: "login"}.String())
	assert.Equal(t, "abuse:user%3Aadmin", AbuseKey("user:admin"))
}

func TestKeySegmentsNeverCollide(t *testing.T) {
	subjects := []string{"a:b", "a_b", "a%3Ab", "a%b", "a%25b", "a::b", "a:", ":a", ""}
	seen := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		key := Key{Subject: subject, Action: "login"}.String()
		if prev, ok := seen[key]; ok {
			t.Fatalf("subjects %q and %q share key %q", prev, subject, key)
		}
		seen[key] = subject
		assert.NotContains(t, EscapeKeySegment(subject), ":")
	}

	assert.NotEqual(t,
		Key{Subject: "b", Action: "a:x"}.String(),
		Key{Subject: "x:b", Action: "a"}.String(),
		"a delimiter in the action cannot shift into the subject")
}

func TestLimitValidate(t *testing.T) {
	assert.NoError(t, Limit{Name: "x", MaxAttempts: 1, Window: time.Second}.Validate())
	assert.Error(t, Limit{Name: "x", MaxAttempts: 0, Window: time.Second}.Validate())
	assert.Error(t, Limit{Name: "x", MaxAttempts: 3}.Validate())
}
