package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-session/internal/config"
	"family-session/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, body model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, mode string, mux *http.ServeMux) *Client {
	t.Helper()

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := New(Options{BaseURL: server.URL, LoginMode: mode})
	require.NoError(t, err)
	return client
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("legacy login normalizes payload", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req model.LoginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "a@b.com", req.Email)
			writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: map[string]any{
				"user":           map[string]any{"_id": "u1", "role": map[string]any{"nombre": "familyadmin"}},
				"accessToken":    "t1",
				"refreshToken":   "r1",
				"tokenExpiresIn": 3600,
				"associations": []map[string]any{
					{"_id": "s1", "account": map[string]any{"_id": "acc1"}, "division": nil, "student": map[string]any{"_id": "st1"}},
				},
			}})
		})
		client := newTestClient(t, config.LoginModeAuto, mux)

		result, err := client.Login(context.Background(), " a@b.com ", "x")
		require.NoError(t, err)
		require.Equal(t, "u1", result.User.ID)
		require.Equal(t, "familyadmin", result.User.Role.Name)
		require.False(t, result.IsFederatedUser)
		require.Equal(t, model.TokenPair{AccessToken: "t1", RefreshToken: "r1", TokenExpiresIn: 3600}, result.Tokens())
		require.Len(t, result.Associations, 1)
		require.Nil(t, result.Associations[0].Division)
		require.Equal(t, "st1", result.Associations[0].Student.ID)
		require.False(t, client.FederatedSession())
	})

	t.Run("auto mode follows federated redirect", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusConflict, model.APIResponse{Error: &model.APIError{Code: CodeFederatedUser, Message: "use identity provider"}})
		})
		mux.HandleFunc("POST /auth/federated/login", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: map[string]any{
				"user":        map[string]any{"_id": "u2", "email": "fed@b.com"},
				"accessToken": "t2",
			}})
		})
		client := newTestClient(t, config.LoginModeAuto, mux)

		result, err := client.Login(context.Background(), "fed@b.com", "x")
		require.NoError(t, err)
		require.True(t, result.IsFederatedUser)
		require.True(t, result.User.IsFederated)
		require.True(t, client.FederatedSession())

		require.NoError(t, client.Logout(context.Background()))
		require.False(t, client.FederatedSession())
	})

	t.Run("rejected credentials", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized, model.APIResponse{Error: &model.APIError{Code: "UNAUTHORIZED", Message: "invalid credentials"}})
		})
		client := newTestClient(t, config.LoginModeLegacy, mux)

		_, err := client.Login(context.Background(), "a@b.com", "bad")
		require.ErrorIs(t, err, model.ErrInvalidCredentials)
		require.NotErrorIs(t, err, model.ErrAuthExpired)
	})

	t.Run("success without user is malformed", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: map[string]any{"accessToken": "t1"}})
		})
		client := newTestClient(t, config.LoginModeLegacy, mux)

		_, err := client.Login(context.Background(), "a@b.com", "x")
		require.ErrorIs(t, err, model.ErrMalformedAuthResponse)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("keeps refresh token when server does not rotate", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: map[string]any{
				"accessToken": "t2", "tokenExpiresIn": 900, "expiresAt": 1,
			}})
		})
		client := newTestClient(t, config.LoginModeLegacy, mux)

		pair, err := client.Refresh(context.Background(), "r1")
		require.NoError(t, err)
		require.Equal(t, "t2", pair.AccessToken)
		require.Equal(t, "r1", pair.RefreshToken)
		require.Equal(t, int64(900), pair.TokenExpiresIn)
		require.Zero(t, pair.ExpiresAt)
	})

	t.Run("revoked refresh token is auth expired", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized, model.APIResponse{Error: &model.APIError{Code: "UNAUTHORIZED", Message: "refresh token is invalid"}})
		})
		client := newTestClient(t, config.LoginModeLegacy, mux)

		_, err := client.Refresh(context.Background(), "revoked")
		require.ErrorIs(t, err, model.ErrAuthExpired)
	})

	t.Run("unreachable backend is network unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client, err := New(Options{BaseURL: url})
		require.NoError(t, err)

		_, err = client.Refresh(context.Background(), "r1")
		require.ErrorIs(t, err, model.ErrNetworkUnavailable)
		require.NotErrorIs(t, err, model.ErrAuthExpired)
	})
}

func TestAssociations(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /associations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: []model.Association{{ID: "s1"}, {ID: "s2"}}})
	})
	mux.HandleFunc("GET /associations/active", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, model.APIResponse{Success: true})
	})
	mux.HandleFunc("PUT /associations/active", func(w http.ResponseWriter, r *http.Request) {
		var req model.SelectAssociationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.AssociationID != "s2" {
			writeJSON(w, http.StatusNotFound, model.APIResponse{Error: &model.APIError{Code: "NOT_FOUND", Message: "association not found"}})
			return
		}
		writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: model.ActiveAssociation{ActiveAssociationID: "s2"}})
	})
	client := newTestClient(t, config.LoginModeLegacy, mux)
	assocs := client.Associations(http.DefaultClient)
	ctx := context.Background()

	list, err := assocs.GetUserAssociations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	active, err := assocs.GetActiveAssociation(ctx)
	require.NoError(t, err)
	require.Nil(t, active)

	active, err = assocs.SetActiveAssociation(ctx, "s2")
	require.NoError(t, err)
	require.Equal(t, "s2", active.ActiveAssociationID)

	_, err = assocs.SetActiveAssociation(ctx, "missing")
	require.ErrorIs(t, err, model.ErrAssociationNotFound)
}
