package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/switchpilot/switchpilot/internal/api/middleware"

// Metrics instruments the control-plane API: request counts and latency,
// labelled by route and by the team the request operates on.
type Metrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics creates the API instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.duration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("API request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.total, err = meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("API requests handled"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter(
		"http.server.requests_in_flight",
		metric.WithDescription("API requests currently being handled"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware records one observation per request.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.inFlight.Add(r.Context(), 1)
			defer m.inFlight.Add(r.Context(), -1)

			rec := recordStatus(w)
			next.ServeHTTP(rec, r)

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.String("http.status_code", strconv.Itoa(rec.status)),
			}
			if teamName := chi.URLParam(r, "team"); teamName != "" {
				attrs = append(attrs, attribute.String("team", teamName))
			}
			if rec.status >= 400 {
				attrs = append(attrs, attribute.Bool("error", true))
			}

			opt := metric.WithAttributes(attrs...)
			m.duration.Record(r.Context(), time.Since(start).Seconds(), opt)
			m.total.Add(r.Context(), 1, opt)
		})
	}
}

// routePattern returns the matched chi pattern, falling back to the raw path
// for requests that never reached the router (404s and the like).
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
