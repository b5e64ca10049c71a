package models

import "strings"

const (
	keyPrefixWindow = "rl"
	keyPrefixAbuse  = "abuse"
)

// segmentEscaper percent-encodes the delimiter and the escape character
// itself, so distinct segments always render to distinct keys.
var segmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// EscapeKeySegment encodes a rate limit key segment so a user-controlled
// identifier containing ':' cannot address an adjacent window.
func EscapeKeySegment(s string) string {
	return segmentEscaper.Replace(s)
}


// Key identifies one window: who is acting and what they are doing.
//
// UserID and IP describe the caller for allowlist matching and are not part
// of the storage key.
type Key struct {
	Subject string `json:"subject"`
	Action  string `json:"action"`
	UserID  string `json:"-"`
	IP      string `json:"-"`
}

// Caller returns the identities allowlist entries are matched against. A key
// built from a bare subject matches it as a user ID only.
func (k Key) Caller() (userID, ip string) {
	if k.UserID == "" && k.IP == "" {
		return k.Subject, ""
	}
	return k.UserID, k.IP
}

// String renders the storage key, rl:<action>:<subject>.
func (k Key) String() string {
	return keyPrefixWindow + ":" + EscapeKeySegment(k.Action) + ":" + EscapeKeySegment(k.Subject)
}

// AbuseKey is the storage key of a subject's abuse counter.
func AbuseKey(subject string) string {
	return keyPrefixAbuse + ":" + EscapeKeySegment(subject)
}
