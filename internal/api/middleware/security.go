package middleware

import (
	"net/http"
	"os"

	"github.com/switchpilot/switchpilot/internal/api/models"
)

// securityHeaders is the fixed header set for a JSON-only API that no
// browser should ever frame or script against.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
}

// SecurityHeaders stamps the standard security headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range securityHeaders {
			w.Header().Set(name, value)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS refuses plaintext requests when REQUIRE_TLS=true. The check
// reads X-Forwarded-Proto because the control plane terminates TLS at the
// load balancer; direct connections carry no forwarded proto and pass.
func RequireTLS(next http.Handler) http.Handler {
	enforced := os.Getenv("REQUIRE_TLS") == "true"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !enforced {
			next.ServeHTTP(w, r)
			return
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
			problem := models.NewProblem(
				"https://switchpilot.dev/problems/tls-required",
				"TLS required",
				http.StatusForbidden,
				GetRequestID(r.Context()),
			)
			problem.Detail = "this endpoint requires HTTPS"
			problem.Instance = r.URL.Path
			problem.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
