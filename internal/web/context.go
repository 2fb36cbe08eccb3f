package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/JonMunkholm/landrecords/internal/logging"
	"github.com/go-chi/chi/v5"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// withDataset tags the request with the village id from the URL so every
// log entry below carries it.
func (s *Server) withDataset(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := logging.WithDataset(r.Context(), chi.URLParam(r, "villageID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// openSession opens the editing session for the request's village.
// It writes the error response itself and returns nil on failure.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) *core.Session {
	sess, err := s.service.Open(r.Context(), core.DatasetFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return nil
	}
	return sess
}

// clientIP returns the request's client address without the port.
// TrustedRealIP has already rewritten RemoteAddr for proxied requests.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
