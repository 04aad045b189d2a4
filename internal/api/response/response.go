// Package response writes the API's JSON bodies and RFC 7807 problems.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/switchpilot/switchpilot/internal/api/middleware"
	"github.com/switchpilot/switchpilot/internal/api/models"
)

// JSON writes data with the given status, stamping the request ID header
// for correlation with the access log.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	stampRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// NoContent answers mutations that have nothing to report back, the
// automation/maintenance/breaker-reset acknowledgements.
func NoContent(w http.ResponseWriter, r *http.Request) {
	stampRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a problem response for the current request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest rejects malformed input, optionally naming the offending
// fields (missing switch reason, unknown color, bad automation level).
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(requestID(r), detail, errors))
}

// Forbidden reports a request that authenticated fine but was refused,
// which is how safety-gate denials surface.
func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewForbidden(requestID(r), detail))
}

// NotFound reports an unknown team or topology entry.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(requestID(r), detail))
}

// InternalError reports an unexpected failure without leaking internals
// beyond the given detail.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(requestID(r), detail))
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

func stampRequestID(w http.ResponseWriter, r *http.Request) {
	if id := requestID(r); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}
