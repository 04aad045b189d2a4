package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/switchpilot/switchpilot/internal/api/middleware"
)

func TestRequestID_MintsID(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetRequestID(r.Context())
		assert.NotEmpty(t, id)
		assert.Contains(t, id, "req_")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/teams", nil))

	assert.Contains(t, rec.Header().Get("X-Request-Id"), "req_")
}

func TestRequestID_KeepsCallerSuppliedID(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "switchctl-4711", middleware.GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/teams/payments/switch", nil)
	req.Header.Set("X-Request-Id", "switchctl-4711")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "switchctl-4711", rec.Header().Get("X-Request-Id"))
}

func TestGetRequestID_EmptyWithoutMiddleware(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}

func TestRequestID_Unique(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/teams", nil))

		id := rec.Header().Get("X-Request-Id")
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate request ID: %s", id)
		seen[id] = true
	}
}
