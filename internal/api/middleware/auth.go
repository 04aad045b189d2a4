package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/switchpilot/switchpilot/internal/api/models"
	"github.com/switchpilot/switchpilot/internal/auth"
)

// operatorKey is the context key for the authenticated operator claims.
type operatorKey struct{}

// identityKey points at a mutable slot the auth middleware fills in.
// Logging and tracing wrap the auth layer from the outside and never see
// context values added after them; the slot carries the operator outward.
type identityKey struct{}

type identitySlot struct {
	operator string
}

// CaptureIdentity installs the identity slot. It must run before Auth in
// the middleware chain.
func CaptureIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), identityKey{}, &identitySlot{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// capturedOperator reads the slot after the request has been served.
func capturedOperator(ctx context.Context) string {
	if slot, ok := ctx.Value(identityKey{}).(*identitySlot); ok {
		return slot.operator
	}
	return ""
}

// Auth creates authentication middleware that validates operator bearer
// tokens. When required is false, requests without an Authorization header
// pass through unauthenticated; presented tokens are still validated.
func Auth(authService *auth.Service, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					writeUnauthorized(w, r, "missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := authHeader[len(bearerPrefix):]
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			if slot, ok := r.Context().Value(identityKey{}).(*identitySlot); ok {
				slot.operator = claims.Operator
			}
			ctx := context.WithValue(r.Context(), operatorKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose token does not carry the given role.
// Viewer endpoints accept any valid token; mutating endpoints need
// auth.RoleOperator. When auth is optional and no token was presented,
// the request is allowed through.
func RequireRole(role auth.Role, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetOperatorClaims(r.Context())
			if claims == nil {
				if required {
					writeUnauthorized(w, r, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if role == auth.RoleOperator && claims.Role != auth.RoleOperator {
				traceID := GetRequestID(r.Context())
				problem := models.NewForbidden(traceID, "operator role required")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetOperatorClaims retrieves the authenticated operator claims from the
// context, nil when unauthenticated.
func GetOperatorClaims(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(operatorKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// GetOperator retrieves the authenticated operator identity from the
// context. Returns an empty string if not authenticated.
func GetOperator(ctx context.Context) string {
	if claims := GetOperatorClaims(ctx); claims != nil {
		return claims.Operator
	}
	return ""
}
