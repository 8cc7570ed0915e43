package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/client"
)

// Logger returns a request logging middleware using zerolog. Each request
// gets its own logger in the context; fields handlers add to it through
// zerolog.Ctx show up on the completion line.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLogger := logger.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()
			if ts := r.Header.Get(client.GameTimestampHeader); ts != "" {
				reqLogger = reqLogger.With().Str("game_timestamp", ts).Logger()
			}
			ctx := reqLogger.WithContext(r.Context())
			l := zerolog.Ctx(ctx)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				event := l.Info()
				if status >= http.StatusInternalServerError {
					event = l.Warn()
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("latency", time.Since(start)).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
