package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lexiflow/lexisync/internal/auth"
)

// logRequests logs one line per request after it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Printf("%s %s %d %dB %s [%s]",
			r.Method, r.URL.Path, status, ww.BytesWritten(),
			time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

// authenticate resolves the bearer token and stores the principal in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			token = r.URL.Query().Get("access_token")
		}

		p, err := s.resolver.Resolve(r.Context(), token)
		if err != nil {
			code := codeUnauthenticated
			if errors.Is(err, auth.ErrInvalidToken) {
				code = codeInvalidToken
			}
			writeError(w, http.StatusUnauthorized, code, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// requireRole rejects principals without role.
func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.FromContext(r.Context())
			if !p.HasRole(role) {
				writeError(w, http.StatusForbidden, codeForbidden, "requires role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
