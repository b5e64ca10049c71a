package admin

import (
	"time"

	ratelimit "bastion/internal/ratelimit/models"
)

type ModeResponse struct {
	Mode     string   `json:"mode"`
	Isolated []string `json:"isolated"`
}

// RestoreRequest moves the system one step toward normal. Reason is
// required and lands in the mode.transition audit record.
type RestoreRequest struct {
	Reason string `json:"reason"`
}

type AddAllowlistRequest struct {
	Type       ratelimit.AllowlistEntryType `json:"type"`
	Identifier string                       `json:"identifier"`
	Reason     string                       `json:"reason"`
	ExpiresAt  *time.Time                   `json:"expires_at,omitempty"`
}

type RemoveAllowlistRequest struct {
	Type       ratelimit.AllowlistEntryType `json:"type"`
	Identifier string                       `json:"identifier"`
}

// SelfCheckResponse reports a no-op operation the guard ran end to end.
// OperationID keys its audit timeline.
type SelfCheckResponse struct {
	OperationID string `json:"operation_id"`
	Mode        string `json:"mode"`
}
