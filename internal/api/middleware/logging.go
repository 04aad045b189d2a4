package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger logs one line per request. Control-plane requests are mostly about
// a team, so the matched team and the authenticated operator are first-class
// fields next to the usual method/route/status.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := recordStatus(w)

			next.ServeHTTP(rec, r)

			ev := log.Info().
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr)

			// Routing has happened by the time the handler returns, so the
			// chi pattern and the team URL param are available here.
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					ev = ev.Str("route", pattern)
				}
			}
			if teamName := chi.URLParam(r, "team"); teamName != "" {
				ev = ev.Str("team", teamName)
			}
			if operator := capturedOperator(r.Context()); operator != "" {
				ev = ev.Str("operator", operator)
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				ev = ev.Str("trace_id", sc.TraceID().String())
			}

			ev.Msg("request completed")
		})
	}
}
