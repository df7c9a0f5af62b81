// Package authclient talks to the platform's REST backend for credential
// exchange and association listing. It normalizes the legacy and federated
// login paths into a single model.AuthResult.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"family-session/internal/config"
	"family-session/internal/model"
	"family-session/pkg/apierror"
)

// CodeFederatedUser is returned by the legacy login endpoint for accounts that
// must sign in through the identity provider.
const CodeFederatedUser = "FEDERATED_USER"

type Client struct {
	baseURL    string
	httpClient *http.Client
	loginMode  string
	log        *slog.Logger

	mu            sync.Mutex
	federatedUser string
}

type Options struct {
	BaseURL    string
	LoginMode  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	mode := opts.LoginMode
	if mode == "" {
		mode = config.LoginModeAuto
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: httpClient,
		loginMode:  mode,
		log:        log.With("component", "authclient"),
	}, nil
}

type loginPayload struct {
	User              *model.User              `json:"user"`
	AccessToken       string                   `json:"accessToken"`
	RefreshToken      string                   `json:"refreshToken"`
	TokenExpiresIn    int64                    `json:"tokenExpiresIn"`
	ActiveAssociation *model.ActiveAssociation `json:"activeAssociation"`
	Associations      []model.Association      `json:"associations"`
}

// Login exchanges credentials for a session. A missing user in a successful
// response is ErrMalformedAuthResponse; a missing access token is passed
// through so the session store can apply its own guard.
func (c *Client) Login(ctx context.Context, email string, password string) (model.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.AuthResult{}, fmt.Errorf("login: email and password are required: %w", model.ErrInvalidCredentials)
	}

	federated := c.loginMode == config.LoginModeFederated
	payload, err := c.login(ctx, email, password, federated)
	if err != nil && !federated && c.loginMode == config.LoginModeAuto && isFederatedRedirect(err) {
		c.log.Debug("legacy login redirected to identity provider")
		federated = true
		payload, err = c.login(ctx, email, password, true)
	}
	if err != nil {
		return model.AuthResult{}, err
	}

	if payload.User == nil {
		return model.AuthResult{}, fmt.Errorf("login: response without user: %w", model.ErrMalformedAuthResponse)
	}

	user := *payload.User
	user.IsFederated = federated

	c.mu.Lock()
	if federated {
		c.federatedUser = user.Email
	} else {
		c.federatedUser = ""
	}
	c.mu.Unlock()

	return model.AuthResult{
		User:              &user,
		AccessToken:       payload.AccessToken,
		RefreshToken:      payload.RefreshToken,
		TokenExpiresIn:    payload.TokenExpiresIn,
		ActiveAssociation: payload.ActiveAssociation,
		Associations:      payload.Associations,
		IsFederatedUser:   federated,
	}, nil
}

func (c *Client) login(ctx context.Context, email string, password string, federated bool) (loginPayload, error) {
	path := "/auth/login"
	if federated {
		path = "/auth/federated/login"
	}

	var payload loginPayload
	err := c.do(ctx, c.httpClient, http.MethodPost, path, model.LoginRequest{Email: email, Password: password}, &payload)
	if err != nil {
		if apierror.IsUnauthorized(err) {
			return loginPayload{}, fmt.Errorf("login: %w", asKind(err, model.ErrInvalidCredentials))
		}
		return loginPayload{}, fmt.Errorf("login: %w", err)
	}
	return payload, nil
}

// Refresh exchanges a refresh token for a new pair. A 401 means the refresh
// token is invalid or revoked and maps to ErrAuthExpired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.TokenPair{}, fmt.Errorf("refresh: no refresh token: %w", model.ErrAuthExpired)
	}

	var pair model.TokenPair
	err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/refresh", model.RefreshRequest{RefreshToken: refreshToken}, &pair)
	if err != nil {
		if apierror.IsUnauthorized(err) {
			return model.TokenPair{}, fmt.Errorf("refresh: %w", asKind(err, model.ErrAuthExpired))
		}
		return model.TokenPair{}, fmt.Errorf("refresh: %w", err)
	}

	if pair.AccessToken == "" {
		return model.TokenPair{}, fmt.Errorf("refresh: response without access token: %w", model.ErrMalformedAuthResponse)
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	pair.ExpiresAt = 0
	return pair, nil
}

func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/revoke", model.RefreshRequest{RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	return nil
}

// Logout drops authenticator-local state such as the federated sign-in.
func (c *Client) Logout(_ context.Context) error {
	c.mu.Lock()
	had := c.federatedUser != ""
	c.federatedUser = ""
	c.mu.Unlock()

	if had {
		c.log.Info("federated sign-in cleared")
	}
	return nil
}

// FederatedSession reports whether the last successful login went through
// the identity provider.
func (c *Client) FederatedSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.federatedUser != ""
}

func (c *Client) do(ctx context.Context, hc *http.Client, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, model.ErrAuthExpired) || errors.Is(err, model.ErrNotAuthenticated) {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, model.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %w", method, path, model.ErrNetworkUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return parseError(respBody, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	var envelope model.Envelope[json.RawMessage]
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response: %w: %w", model.ErrMalformedAuthResponse, err)
	}
	if !envelope.Success {
		return parseError(respBody, resp.StatusCode)
	}
	if envelope.Data == nil {
		return nil
	}
	if err := json.Unmarshal(*envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w: %w", model.ErrMalformedAuthResponse, err)
	}
	return nil
}

func parseError(body []byte, status int) error {
	var envelope model.Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return apierror.New(envelope.Error.Code, envelope.Error.Message, envelope.Error.Details, status)
	}
	return apierror.New("HTTP_"+fmt.Sprint(status), http.StatusText(status), "", status)
}

func isFederatedRedirect(err error) bool {
	var apiErr *apierror.APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeFederatedUser
}

func asKind(err error, kind error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.WithKind(kind)
	}
	return fmt.Errorf("%w: %w", kind, err)
}
