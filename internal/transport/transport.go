// Package transport is the authorized HTTP layer: it attaches the bearer
// token, recovers from a rejected token once, and forces a logout when the
// server keeps refusing the session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"family-session/internal/model"
)

const RequestIDHeader = "X-Request-ID"

type TokenSource interface {
	ValidAccessToken(ctx context.Context) (string, error)
	RefreshRejected(ctx context.Context, rejected string) (string, error)
}

type LogoutTrigger interface {
	Trigger(ctx context.Context) bool
}

type Options struct {
	Base         http.RoundTripper
	RateLimitRPM int
	Logger       *slog.Logger
}

type Transport struct {
	base    http.RoundTripper
	tokens  TokenSource
	logout  LogoutTrigger
	limiter *rate.Limiter
	log     *slog.Logger
}

func New(tokens TokenSource, logout LogoutTrigger, opts Options) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPM > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RateLimitRPM)), opts.RateLimitRPM)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		base:    base,
		tokens:  tokens,
		logout:  logout,
		limiter: limiter,
		log:     log.With("component", "transport"),
	}
}

// Client wraps the transport in an http.Client.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	token, err := t.tokens.ValidAccessToken(ctx)
	if err != nil {
		return nil, sessionEnded(err)
	}

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	resp, err := t.send(req, token, requestID)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if !replayable(req) {
		if _, err := t.tokens.RefreshRejected(ctx, token); err != nil {
			t.log.Warn("refresh after rejected request failed", "request_id", requestID, "error", err)
		}
		return resp, nil
	}

	drain(resp)

	fresh, err := t.tokens.RefreshRejected(ctx, token)
	if err != nil {
		return nil, sessionEnded(err)
	}

	retry, err := t.send(req, fresh, requestID)
	if err != nil {
		return nil, err
	}

	if retry.StatusCode == http.StatusUnauthorized {
		t.log.Warn("server rejected refreshed token; logging out", "request_id", requestID, "path", req.URL.Path)
		t.logout.Trigger(context.WithoutCancel(ctx))
	}
	return retry, nil
}

func (t *Transport) send(req *http.Request, token string, requestID string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+token)
	out.Header.Set(RequestIDHeader, requestID)

	started := time.Now()
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		t.log.Debug("request failed", "request_id", requestID, "method", req.Method, "path", req.URL.Path, "error", err)
		return nil, err
	}

	attrs := []any{
		"request_id", requestID,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	}
	if resp.StatusCode >= 500 {
		t.log.Warn("request", attrs...)
	} else {
		t.log.Debug("request", attrs...)
	}
	return resp, nil
}

// replayable reports whether req may be sent a second time after a 401.
func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
	default:
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sessionEnded(err error) error {
	if IsSessionEnded(err) {
		return fmt.Errorf("request failed, session ended: %w", err)
	}
	return err
}

// IsSessionEnded reports whether err means the request failed because the
// session is gone.
func IsSessionEnded(err error) bool {
	return errors.Is(err, model.ErrAuthExpired) || errors.Is(err, model.ErrNotAuthenticated)
}
