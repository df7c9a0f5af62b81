// Package token owns the access/refresh token pair: when it expires, when to
// refresh it, and making sure concurrent callers share one refresh.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"family-session/internal/kvstore"
	"family-session/internal/model"
)

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
}

type LogoutTrigger interface {
	Trigger(ctx context.Context) bool
}

type Options struct {
	SafetyMargin   time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

type Manager struct {
	store          kvstore.Store
	auth           Refresher
	logout         LogoutTrigger
	now            func() time.Time
	safetyMargin   time.Duration
	refreshTimeout time.Duration
	log            *slog.Logger

	group singleflight.Group

	mu   sync.RWMutex
	pair *model.TokenPair
	// generation changes whenever the pair is replaced or cleared, so a refresh
	// that started before a logout cannot resurrect the old session.
	generation uint64
}

func NewManager(store kvstore.Store, auth Refresher, logout LogoutTrigger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 20 * time.Second
	}
	if opts.SafetyMargin < 0 {
		opts.SafetyMargin = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{
		store:          store,
		auth:           auth,
		logout:         logout,
		now:            opts.Now,
		safetyMargin:   opts.SafetyMargin,
		refreshTimeout: opts.RefreshTimeout,
		log:            opts.Logger.With("component", "token"),
	}
}

// SaveTokens stamps the pair with expiresAt = now + tokenExpiresIn and makes
// it current. Persistence failures are logged; memory stays authoritative.
func (m *Manager) SaveTokens(ctx context.Context, pair model.TokenPair) model.TokenPair {
	pair = m.stamp(pair)

	m.mu.Lock()
	m.pair = &pair
	m.generation++
	m.mu.Unlock()

	m.persist(ctx, pair)
	return pair
}

func (m *Manager) stamp(pair model.TokenPair) model.TokenPair {
	pair.ExpiresAt = 0
	if pair.TokenExpiresIn > 0 {
		pair.ExpiresAt = m.now().Add(time.Duration(pair.TokenExpiresIn) * time.Second).Unix()
	}
	return pair
}

func (m *Manager) persist(ctx context.Context, pair model.TokenPair) {
	data, err := json.Marshal(pair)
	if err != nil {
		m.log.Error("encode token pair", "error", err)
		return
	}
	if err := m.store.SetItem(ctx, model.KeyTokenPair, string(data)); err != nil {
		m.log.Warn("persist token pair failed", "error", err)
	}
}

// Restore reinstates the pair persisted for accessToken after a restart. If
// the stored pair belongs to a different token only the access token is kept
// and its expiry is treated as unknown.
func (m *Manager) Restore(ctx context.Context, accessToken string) {
	pair := model.TokenPair{AccessToken: accessToken}

	raw, ok, err := m.store.GetItem(ctx, model.KeyTokenPair)
	switch {
	case err != nil:
		m.log.Warn("read token pair failed", "error", err)
	case ok:
		var stored model.TokenPair
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			m.log.Warn("decode token pair failed", "error", err)
		} else if stored.AccessToken == accessToken {
			pair = stored
		}
	}

	m.mu.Lock()
	m.pair = &pair
	m.generation++
	m.mu.Unlock()
}

// Current returns a copy of the live pair.
func (m *Manager) Current() (model.TokenPair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.pair == nil {
		return model.TokenPair{}, false
	}
	return *m.pair, true
}

func (m *Manager) ExpiresAt() time.Time {
	pair, ok := m.Current()
	if !ok || pair.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(pair.ExpiresAt, 0)
}

// ValidAccessToken returns the cached access token while it is outside the
// safety margin, otherwise it waits for a refresh shared with every other
// concurrent caller.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	pair, ok := m.Current()
	if !ok || pair.AccessToken == "" {
		return "", model.ErrNotAuthenticated
	}

	if !m.needsRefresh(pair) {
		return pair.AccessToken, nil
	}

	return m.Refresh(ctx)
}

func (m *Manager) needsRefresh(pair model.TokenPair) bool {
	if pair.ExpiresAt == 0 {
		return false
	}
	deadline := time.Unix(pair.ExpiresAt, 0).Add(-m.safetyMargin)
	return !m.now().Before(deadline)
}

// RefreshRejected is used after the server rejected the rejected token. If
// another caller already replaced it, the newer token is returned without a
// second refresh.
func (m *Manager) RefreshRejected(ctx context.Context, rejected string) (string, error) {
	pair, ok := m.Current()
	if !ok || pair.AccessToken == "" {
		return "", model.ErrNotAuthenticated
	}
	if pair.AccessToken != rejected {
		return pair.AccessToken, nil
	}
	return m.Refresh(ctx)
}

// Refresh joins the in-flight refresh or starts one. The exchange runs on its
// own context bounded by the refresh timeout; ctx only bounds this caller's
// wait.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) refresh() (string, error) {
	m.mu.RLock()
	var pair model.TokenPair
	if m.pair != nil {
		pair = *m.pair
	}
	gen := m.generation
	m.mu.RUnlock()

	if pair.RefreshToken == "" {
		m.expire(gen, "no refresh token")
		return "", fmt.Errorf("refresh: %w", model.ErrAuthExpired)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	next, err := m.auth.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		if errors.Is(err, model.ErrAuthExpired) {
			m.expire(gen, "refresh token rejected")
			return "", err
		}
		m.log.Warn("token refresh failed", "error", err)
		return "", err
	}

	next = m.stamp(next)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.log.Info("discarding refresh result; session changed while refreshing")
		return "", fmt.Errorf("refresh: %w", model.ErrNotAuthenticated)
	}
	m.pair = &next
	m.generation++
	m.mu.Unlock()

	m.persist(ctx, next)
	m.log.Info("access token refreshed", "expires_at", time.Unix(next.ExpiresAt, 0).UTC())
	return next.AccessToken, nil
}

// expire drops the tokens and fires the logout hook. It runs inside the
// single-flight refresh, so one failed cycle logs out once.
func (m *Manager) expire(gen uint64, reason string) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.pair = nil
	m.generation++
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	m.removePersisted(ctx)
	m.log.Warn("session expired", "reason", reason)

	if m.logout != nil {
		m.logout.Trigger(ctx)
	}
}

// Clear removes all token state. Safe to call repeatedly.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.pair = nil
	m.generation++
	m.mu.Unlock()

	m.removePersisted(ctx)
}

func (m *Manager) removePersisted(ctx context.Context) {
	if err := m.store.RemoveItem(ctx, model.KeyTokenPair); err != nil {
		m.log.Warn("remove token pair failed", "error", err)
	}
}

// RevokeRefreshToken asks the server to invalidate the refresh token. The
// token is detached first so concurrent callers revoke it at most once.
// Failures are logged and never block a local logout.
func (m *Manager) RevokeRefreshToken(ctx context.Context) {
	m.mu.Lock()
	if m.pair == nil || m.pair.RefreshToken == "" {
		m.mu.Unlock()
		return
	}
	refreshToken := m.pair.RefreshToken
	detached := *m.pair
	detached.RefreshToken = ""
	m.pair = &detached
	m.mu.Unlock()

	if err := m.auth.Revoke(ctx, refreshToken); err != nil {
		m.log.Warn("refresh token revoke failed", "error", err)
		return
	}
	m.log.Debug("refresh token revoked")
}
