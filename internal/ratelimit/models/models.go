package models

import (
	"fmt"
	"time"

	dErrors "bastion/pkg/domain-errors"
)

// WindowVersion is the layout version written by every store. Readers reject
// windows carrying any other version.
const WindowVersion = 1

// Window is a fixed attempt-counting window for one key. A window is
// replaced, never extended, once it expires.
type Window struct {
	Version   int       `json:"version"`
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewWindow starts an empty window at now.
func NewWindow(key string, d time.Duration, now time.Time) Window {
	return Window{
		Version:   WindowVersion,
		Key:       key,
		StartedAt: now,
		ExpiresAt: now.Add(d),
	}
}

// Validate checks the window is self-consistent. Stores call it on every
// read so a corrupt window surfaces instead of being counted against.
func (w Window) Validate() error {
	if w.Version != WindowVersion {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("window %q has unknown version %d", w.Key, w.Version))
	}
	if !w.ExpiresAt.After(w.StartedAt) {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("window %q expires before it starts", w.Key))
	}
	if w.Count < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("window %q has negative count", w.Key))
	}
	return nil
}

// Expired reports whether the window no longer applies at now.
func (w Window) Expired(now time.Time) bool {
	return !now.Before(w.ExpiresAt)
}

// Limit is a named attempt budget per window.
type Limit struct {
	Name        string        `json:"name"`
	MaxAttempts int           `json:"max_attempts"`
	Window      time.Duration `json:"window"`
}

func (l Limit) Validate() error {
	if l.MaxAttempts < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "limit max attempts must be at least 1")
	}
	if l.Window <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "limit window must be positive")
	}
	return nil
}

// MultiResult reports a CheckMulti evaluation. Checked lists the limits that
// were consumed, in order.
type MultiResult struct {
	Allowed  bool     `json:"allowed"`
	Violated string   `json:"violated,omitempty"`
	Checked  []string `json:"checked"`
}

// AllowlistEntryType defines whether an allowlist entry is for an IP or user.
type AllowlistEntryType string

const (
	AllowlistTypeIP     AllowlistEntryType = "ip"
	AllowlistTypeUserID AllowlistEntryType = "user_id"
)

func (t AllowlistEntryType) IsValid() bool {
	return t == AllowlistTypeIP || t == AllowlistTypeUserID
}

// AllowlistEntry is a subject that bypasses rate limiting.
type AllowlistEntry struct {
	Type       AllowlistEntryType `json:"type"`
	Identifier string             `json:"identifier"`
	Reason     string             `json:"reason"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewAllowlistEntry creates an AllowlistEntry with domain invariant validation.
func NewAllowlistEntry(entryType AllowlistEntryType, identifier, reason string, now time.Time, expiresAt *time.Time) (*AllowlistEntry, error) {
	if !entryType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid allowlist entry type")
	}
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identifier cannot be empty")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "reason cannot be empty")
	}
	return &AllowlistEntry{
		Type:       entryType,
		Identifier: identifier,
		Reason:     reason,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}, nil
}

// IsExpired checks if the allowlist entry has expired at now.
func (e *AllowlistEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return now.After(*e.ExpiresAt)
}
