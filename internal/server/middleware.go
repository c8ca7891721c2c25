package server

import (
	"net/http"

	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/item"
)

// requireActive short-circuits with 503 while no database configuration
// is active, before any handler touches the repository.
func (s *Server) requireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.mgr.Active() == nil {
			writeError(w, r, item.ErrUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errRateLimited = errs.New(errs.ErrKindRateLimited, "too many requests, slow down")

// throttle applies the shared /db limiter. Each accepted request may open
// a whole connection pool against a caller-chosen host.
func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
