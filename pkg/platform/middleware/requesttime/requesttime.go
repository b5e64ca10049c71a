// Package requesttime pins one "now" per request so every audit record and
// rate-limit decision made while serving it agrees on the time.
package requesttime

import (
	"net/http"
	"time"

	"bastion/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
