package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"family-session/internal/config"
	"family-session/internal/handler"
	"family-session/internal/middleware"
	"family-session/internal/model"
	"family-session/internal/sandbox"
	"family-session/internal/service"
)

const routerFixtures = `
users:
  - id: u1
    email: a@b.com
    password: x
    associations:
      - id: s1
        account: {id: acc1}
        role: {id: r1}
      - id: s2
        account: {id: acc2}
        role: {id: r1}
  - id: u3
    email: fed@b.com
    password: z
    federated: true
`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	fx, err := sandbox.ParseFixtures([]byte(routerFixtures))
	require.NoError(t, err)
	directory := sandbox.NewDirectory(fx)

	authService, err := service.NewAuthService(directory, "test-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	cfg := &config.SandboxConfig{
		JWTSecret:        "test-secret",
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     -1,
		AuthRateLimitRPM: 1000,
		RequestTimeout:   5 * time.Second,
	}

	server := httptest.NewServer(New(cfg, middleware.NewAuthMiddleware(authService), Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Associations: handler.NewAssociationHandler(service.NewAssociationService(directory)),
	}))
	t.Cleanup(server.Close)
	return server
}

func call(t *testing.T, method string, url string, token string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestAuthAndAssociationFlow(t *testing.T) {
	server := newServer(t)
	api := server.URL + "/api/v1"

	status, env := call(t, http.MethodPost, api+"/auth/login", "", model.LoginRequest{Email: "a@b.com", Password: "x"})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var login model.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.AccessToken)
	require.Len(t, login.Associations, 2)

	status, env = call(t, http.MethodGet, api+"/associations/active", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "null", string(env.Data))

	status, env = call(t, http.MethodPut, api+"/associations/active", login.AccessToken, model.SelectAssociationRequest{AssociationID: "s2"})
	require.Equal(t, http.StatusOK, status)
	var active model.ActiveAssociation
	require.NoError(t, json.Unmarshal(env.Data, &active))
	require.Equal(t, "acc2", active.Account.ID)

	status, env = call(t, http.MethodPut, api+"/associations/active", login.AccessToken, model.SelectAssociationRequest{AssociationID: "zzz"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = call(t, http.MethodPost, api+"/auth/refresh", "", model.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	require.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	status, _ = call(t, http.MethodPost, api+"/auth/refresh", "", model.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, http.MethodPost, api+"/auth/revoke", "", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, status)

	status, _ = call(t, http.MethodPost, api+"/auth/refresh", "", model.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestFederatedRedirect(t *testing.T) {
	server := newServer(t)
	api := server.URL + "/api/v1"

	status, env := call(t, http.MethodPost, api+"/auth/login", "", model.LoginRequest{Email: "fed@b.com", Password: "z"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, service.CodeFederatedUser, env.Error.Code)

	status, env = call(t, http.MethodPost, api+"/auth/federated/login", "", model.LoginRequest{Email: "fed@b.com", Password: "z"})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newServer(t)

	status, env := call(t, http.MethodGet, server.URL+"/api/v1/associations", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, env.Success)

	status, _ = call(t, http.MethodGet, server.URL+"/api/v1/associations", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, http.MethodPost, server.URL+"/api/v1/auth/refresh", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHealth(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
