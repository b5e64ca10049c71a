package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/codec"
)

// Key derivation contexts. Changing either invalidates every stored tag in
// that domain.
const (
	PurposeAuditRecord  = "bastion.audit.record.v1"
	PurposeResultDigest = "bastion.result.digest.v1"
)

// payloadDomainKey separates audit payload hashes from any other BLAKE3 use.
var payloadDomainKey = [32]byte{
	'b', 'a', 's', 't', 'i', 'o', 'n', '.', 'a', 'u', 'd', 'i', 't', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

const canonicalVersion = 1

var (
	ErrEmptySecret = errors.New("signing secret is empty")
	ErrUnsigned    = errors.New("record carries no integrity tag")
)

// Signer computes and verifies integrity tags. The HMAC key is derived from
// the configured secret with HKDF-SHA256 so one secret can serve several
// purposes without tags being interchangeable between them.
type Signer struct {
	keyID string
	key   []byte
}

// NewSigner derives a 32-byte HMAC key for purpose from secret.
func NewSigner(keyID string, secret []byte, purpose string) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Signer{keyID: keyID, key: key}, nil
}

func (s *Signer) KeyID() string { return s.keyID }

// canonicalRecord is every Record field except PayloadHash and Tag, with
// times pinned to UTC so a record read back from any store re-encodes to the
// same bytes.
type canonicalRecord struct {
	Version       int               `cbor:"v"`
	ID            string            `cbor:"id"`
	Type          string            `cbor:"type"`
	Severity      string            `cbor:"severity"`
	Timestamp     time.Time         `cbor:"ts"`
	OperationID   string            `cbor:"op,omitempty"`
	CorrelationID string            `cbor:"corr,omitempty"`
	Context       ContextSnapshot   `cbor:"ctx"`
	Reason        string            `cbor:"reason,omitempty"`
	Details       map[string]string `cbor:"details,omitempty"`
	Resources     *ResourceSnapshot `cbor:"res,omitempty"`
	Critical      bool              `cbor:"critical"`
	KeyID         string            `cbor:"kid"`
}

func canonicalize(rec Record) ([]byte, error) {
	c := canonicalRecord{
		Version:       canonicalVersion,
		ID:            rec.ID,
		Type:          string(rec.Type),
		Severity:      string(rec.Severity),
		Timestamp:     rec.Timestamp.UTC(),
		OperationID:   rec.OperationID,
		CorrelationID: rec.CorrelationID,
		Context:       rec.Context,
		Reason:        rec.Reason,
		Details:       rec.Details,
		Critical:      rec.Critical,
		KeyID:         rec.KeyID,
	}
	if rec.Resources != nil {
		res := *rec.Resources
		res.CapturedAt = res.CapturedAt.UTC()
		c.Resources = &res
	}
	return codec.Marshal(c)
}

// Normalize truncates timestamps to the microsecond precision every store
// preserves. Sign calls it; stores never need to.
func Normalize(rec *Record) {
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Microsecond)
	if rec.Resources != nil {
		rec.Resources.CapturedAt = rec.Resources.CapturedAt.UTC().Truncate(time.Microsecond)
	}
	if len(rec.Details) == 0 {
		rec.Details = nil
	}
	if len(rec.Context.Permissions) == 0 {
		rec.Context.Permissions = nil
	}
}

// Sign fills KeyID, PayloadHash and Tag on rec.
func (s *Signer) Sign(rec *Record) error {
	Normalize(rec)
	rec.KeyID = s.keyID
	payload, err := canonicalize(*rec)
	if err != nil {
		return fmt.Errorf("canonicalize audit record: %w", err)
	}
	rec.PayloadHash = hashPayload(payload)
	rec.Tag = s.mac(payload)
	return nil
}

// Verify recomputes the payload hash and tag of rec and requires both to
// match exactly.
func (s *Signer) Verify(rec Record) error {
	if rec.Tag == "" {
		return dErrors.Wrap(ErrUnsigned, dErrors.CodeIntegrityFailed, "audit record unsigned")
	}
	if rec.KeyID != s.keyID {
		return dErrors.New(dErrors.CodeIntegrityFailed, fmt.Sprintf("audit record signed with unknown key %q", rec.KeyID))
	}
	payload, err := canonicalize(rec)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrityFailed, "audit record not canonicalizable")
	}
	if !hmac.Equal([]byte(hashPayload(payload)), []byte(rec.PayloadHash)) {
		return dErrors.New(dErrors.CodeIntegrityFailed, "audit payload hash mismatch")
	}
	if !hmac.Equal([]byte(s.mac(payload)), []byte(rec.Tag)) {
		return dErrors.New(dErrors.CodeIntegrityFailed, "audit integrity tag mismatch")
	}
	return nil
}

// TagOf returns the hex HMAC of v's canonical encoding.
func (s *Signer) TagOf(v any) (string, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return s.mac(payload), nil
}

// VerifyTag reports whether tag is the HMAC of v's canonical encoding.
func (s *Signer) VerifyTag(v any, tag string) (bool, error) {
	want, err := s.TagOf(v)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(tag)), nil
}

func (s *Signer) mac(payload []byte) string {
	m := hmac.New(sha256.New, s.key)
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

func hashPayload(payload []byte) string {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("audit: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}
