package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"barbershop/backend/internal/auth"
	"barbershop/backend/internal/domain"
)

// requestTimeout bounds every request that does not already carry a deadline.
func requestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing bearer token"})
			return
		}
		p, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "invalid or expired token"})
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	}
}

func (h *handler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return h.authenticated(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		if !p.IsAdmin() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: "admin access required"})
			return
		}
		next(w, r)
	})
}

func principal(r *http.Request) domain.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
