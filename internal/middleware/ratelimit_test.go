package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method string, path string, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitUnlimitedGeneralBudget(t *testing.T) {
	h := NewRateLimitMiddleware(-1, 1).Handler(okHandler())

	for i := 0; i < 200; i++ {
		rec := serve(h, http.MethodGet, "/api/v1/associations", "")
		if !assert.Equal(t, http.StatusOK, rec.Code, "request %d", i) {
			return
		}
	}
}

func TestRateLimitCredentialBudget(t *testing.T) {
	h := NewRateLimitMiddleware(-1, 1).Handler(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/v1/auth/login", "").Code)

	// Login and refresh share the burst of 1.
	rec := serve(h, http.MethodPost, "/api/v1/auth/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	// Revoke stays on the general budget.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/v1/auth/revoke", "").Code)

	// Other clients have their own budget.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/v1/auth/login", "10.0.0.9, 10.0.0.1").Code)
}

func TestRateLimitDefaults(t *testing.T) {
	mw := NewRateLimitMiddleware(-1, 0)
	assert.Equal(t, -1, mw.generalRPM)
	assert.Equal(t, 10, mw.authRPM)

	mw = NewRateLimitMiddleware(0, 5)
	assert.Equal(t, 100, mw.generalRPM)
	assert.Equal(t, 5, mw.authRPM)
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": " 1.1.1.1 , 2.2.2.2"}, remote: "9.9.9.9:1", want: "1.1.1.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "3.3.3.3"}, remote: "9.9.9.9:1", want: "3.3.3.3"},
		{name: "peer address", remote: "9.9.9.9:1234", want: "9.9.9.9"},
		{name: "bare peer", remote: "9.9.9.9", want: "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}
