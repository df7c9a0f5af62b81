package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// Timeout bounds API handlers. Clients see the standard failure envelope
// with code REQUEST_TIMEOUT and status 503.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(errorEnvelope("REQUEST_TIMEOUT", "request timed out"))

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
