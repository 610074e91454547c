package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareRequestID(t *testing.T) {
	var seen string
	h := MiddlewareRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc", seen)
	require.Equal(t, "abc", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.NotEqual(t, "abc", seen)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "has space\n")
	h.ServeHTTP(rec, req)
	require.NotEqual(t, "has space\n", seen)
	require.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestError_Shape(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(context.Background(), rec, http.StatusForbidden, "FORBIDDEN", "not a member")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.JSONEq(t, `{"error":{"code":"FORBIDDEN","message":"not a member"}}`, rec.Body.String())
}

func TestMiddlewareLogging_PassesThroughStatus(t *testing.T) {
	h := MiddlewareLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
