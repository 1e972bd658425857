package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"letDrone/internal/apperrors"
	"letDrone/internal/auth"
	"letDrone/internal/policy"
)

const requestIDHeader = "X-Request-ID"

type actorKey struct{}

func withActor(ctx context.Context, a *policy.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func actorFrom(r *http.Request) *policy.Actor {
	a, _ := r.Context().Value(actorKey{}).(*policy.Actor)
	return a
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware echoes X-Request-ID, minting one when absent, and
// attaches a request-scoped logger.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		logger := log.Logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				zerolog.Ctx(r.Context()).Error().Interface("panic", p).Msg("handler panicked")
				writeError(wrapped, r, apperrors.Internal("panic", nil))
			}
			elapsed := time.Since(start)
			route := routeTemplate(r)
			h.Metrics.RecordHTTPRequest(r.Method, route, wrapped.statusCode, elapsed)
			zerolog.Ctx(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", wrapped.statusCode).
				Dur("duration", elapsed).
				Msg("http request")
		}()
		next.ServeHTTP(wrapped, r)
	})
}

// authMiddleware verifies the bearer token and resolves the caller's roles
// from the database. Requests without a valid token never reach a handler.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, r, apperrors.Authentication("authentication credentials were not provided"))
			return
		}
		p, err := auth.ParseBearer(header, h.JWTSecret)
		if err != nil {
			writeError(w, r, apperrors.Authentication("invalid or expired token"))
			return
		}
		a, err := h.Resolver.Resolve(r.Context(), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zerolog.Ctx(ctx).With().Int64("user_id", a.User.ID).Logger().WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(withActor(ctx, a)))
	})
}
