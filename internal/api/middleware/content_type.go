package middleware

import (
	"net/http"
	"strings"

	"github.com/switchpilot/switchpilot/internal/api/models"
)

// ContentTypeJSON defaults responses to application/json. Handlers that
// serve something else (the plain-text fleet report) set their own header
// first and win.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects bodied requests that declare a non-JSON content type.
// A missing Content-Type is tolerated; every mutating endpoint decodes JSON
// and reports its own parse failure.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				problem := models.NewProblem(
					"https://switchpilot.dev/problems/unsupported-media-type",
					"Unsupported media type",
					http.StatusUnsupportedMediaType,
					GetRequestID(r.Context()),
				)
				problem.Detail = "request bodies must be application/json"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
