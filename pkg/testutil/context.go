package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	audit "bastion/pkg/platform/audit"
	"bastion/pkg/requestcontext"
)

// WithFixedTime pins requestcontext.Now for everything downstream of req.
func WithFixedTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// AuditRecorder captures audit records in memory, in arrival order.
type AuditRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *AuditRecorder) Record(_ context.Context, rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *AuditRecorder) Records() []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Record(nil), r.records...)
}

// OfType returns the captured records of one event type.
func (r *AuditRecorder) OfType(t audit.EventType) []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Record
	for _, rec := range r.records {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}
