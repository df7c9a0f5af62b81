// Package session is the single source of truth for the signed-in user, the
// access token and the user's associations.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"family-session/internal/event"
	"family-session/internal/kvstore"
	"family-session/internal/logouthook"
	"family-session/internal/model"
)

type Authenticator interface {
	Login(ctx context.Context, email string, password string) (model.AuthResult, error)
	Logout(ctx context.Context) error
}

type AssociationSource interface {
	GetUserAssociations(ctx context.Context) ([]model.Association, error)
	GetActiveAssociation(ctx context.Context) (*model.ActiveAssociation, error)
	SetActiveAssociation(ctx context.Context, associationID string) (*model.ActiveAssociation, error)
}

type TokenManager interface {
	SaveTokens(ctx context.Context, pair model.TokenPair) model.TokenPair
	Restore(ctx context.Context, accessToken string)
	Clear(ctx context.Context)
	RevokeRefreshToken(ctx context.Context)
}

type Store struct {
	kv     kvstore.Store
	auth   Authenticator
	assocs AssociationSource
	tokens TokenManager
	bus    event.Bus
	log    *slog.Logger

	hydrateOnce sync.Once
	// transitionMu orders login, logout and the writes that follow network
	// calls. It is never held across a call that can trigger the logout hook.
	transitionMu sync.Mutex

	mu      sync.RWMutex
	session model.Session
}

func NewStore(kv kvstore.Store, auth Authenticator, assocs AssociationSource, tokens TokenManager, bus event.Bus, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &Store{
		kv:      kv,
		auth:    auth,
		assocs:  assocs,
		tokens:  tokens,
		bus:     bus,
		log:     log.With("component", "session"),
		session: model.Session{IsLoading: true},
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAuthenticated()
}

// Loading is true until Hydrate completes. Callers must treat it as unknown,
// not as signed out.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsLoading
}

func (s *Store) User() *model.User {
	return s.Snapshot().User
}

// Subscribe registers a synchronous handler for session events.
func (s *Store) Subscribe(h event.Handler) func() {
	return s.bus.SubscribeFunc(h)
}

// LogoutFunc adapts Logout for the logout hook.
func (s *Store) LogoutFunc() logouthook.Func {
	return func(ctx context.Context) {
		if err := s.Logout(ctx); err != nil {
			s.log.Warn("forced logout finished with error", "error", err)
		}
	}
}

type persisted struct {
	token        string
	hasToken     bool
	user         string
	hasUser      bool
	associations string
	hasAssocs    bool
	active       string
	hasActive    bool
}

// Hydrate restores the session persisted by a previous process. It runs
// once; read failures degrade to an empty session and it always ends with
// the store no longer loading.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		s.transitionMu.Lock()
		defer s.transitionMu.Unlock()

		restored, err := s.readPersisted(ctx)
		if err != nil {
			s.log.Warn("session hydration degraded to empty session", "error", err)
			restored = model.Session{}
		}

		if restored.IsAuthenticated() {
			s.tokens.Restore(ctx, *restored.Token)
		}

		s.mu.Lock()
		restored.IsLoading = false
		s.session = restored
		snap := s.session.Clone()
		s.mu.Unlock()

		s.log.Info("session hydrated", "authenticated", snap.IsAuthenticated(), "associations", len(snap.Associations))
		s.publish(event.TypeSessionHydrated, snap)
	})
}

func (s *Store) readPersisted(ctx context.Context) (model.Session, error) {
	var p persisted
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		p.token, p.hasToken, err = s.kv.GetItem(gctx, model.KeyToken)
		return err
	})
	g.Go(func() (err error) {
		p.user, p.hasUser, err = s.kv.GetItem(gctx, model.KeyUser)
		return err
	})
	g.Go(func() (err error) {
		p.associations, p.hasAssocs, err = s.kv.GetItem(gctx, model.KeyAssociations)
		return err
	})
	g.Go(func() (err error) {
		p.active, p.hasActive, err = s.kv.GetItem(gctx, model.KeyActiveAssociation)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Session{}, err
	}

	if !p.hasToken || p.token == "" || !p.hasUser {
		return model.Session{}, nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(p.user), &user); err != nil {
		return model.Session{}, fmt.Errorf("decode %s: %w: %w", model.KeyUser, model.ErrPersistence, err)
	}

	out := model.Session{User: &user, Token: &p.token}

	if p.hasAssocs {
		var list []model.Association
		if err := json.Unmarshal([]byte(p.associations), &list); err != nil {
			s.log.Warn("dropping unreadable associations", "error", err)
		} else {
			out.Associations = list
		}
	}
	if p.hasActive {
		var active model.ActiveAssociation
		if err := json.Unmarshal([]byte(p.active), &active); err != nil {
			s.log.Warn("dropping unreadable active association", "error", err)
		} else {
			out.ActiveAssociation = &active
		}
	}

	return out, nil
}

// Authenticate exchanges credentials for a session. The returned bool is the
// resulting authentication state; an authenticator that answers without an
// access token leaves the user set but the session unauthenticated.
func (s *Store) Authenticate(ctx context.Context, email string, password string) (bool, error) {
	result, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.log.Info("login failed", "error", err)
		return false, err
	}
	if result.User == nil {
		return false, fmt.Errorf("login: %w", model.ErrMalformedAuthResponse)
	}

	s.transitionMu.Lock()
	snap := s.applyLogin(ctx, result)
	s.transitionMu.Unlock()

	if result.Associations == nil && snap.Token != nil {
		s.fetchAssociations(ctx, *snap.Token)
	}

	return snap.IsAuthenticated(), nil
}

// applyLogin installs a login result in memory and persistence. Callers hold
// transitionMu.
func (s *Store) applyLogin(ctx context.Context, result model.AuthResult) model.Session {
	user := *result.User
	var token *string
	if result.AccessToken != "" {
		t := result.AccessToken
		token = &t
	}

	s.mu.Lock()
	s.session = model.Session{
		User:              &user,
		Token:             token,
		Associations:      result.Associations,
		ActiveAssociation: result.ActiveAssociation,
	}
	snap := s.session.Clone()
	s.mu.Unlock()

	s.persistCredentials(ctx, token, user)

	if result.ActiveAssociation != nil {
		s.setJSON(ctx, model.KeyActiveAssociation, result.ActiveAssociation)
	} else {
		s.remove(ctx, model.KeyActiveAssociation)
	}

	if token != nil {
		s.tokens.SaveTokens(ctx, result.Tokens())
	} else {
		s.log.Warn("login succeeded without access token; session left unauthenticated", "user_id", user.ID)
		s.tokens.Clear(ctx)
	}

	if result.Associations != nil {
		s.setJSON(ctx, model.KeyAssociations, result.Associations)
	} else {
		s.remove(ctx, model.KeyAssociations)
	}

	s.log.Info("login succeeded", "user_id", user.ID, "federated", result.IsFederatedUser, "authenticated", snap.IsAuthenticated())
	s.publish(event.TypeSessionAuthenticated, snap)
	return snap
}

// persistCredentials writes token and user as a pair: if either write fails
// both keys are removed so a restart never sees one without the other.
func (s *Store) persistCredentials(ctx context.Context, token *string, user model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.log.Error("encode user", "error", err)
		return
	}

	err = s.kv.SetItem(ctx, model.KeyUser, string(data))
	if err == nil {
		if token != nil {
			err = s.kv.SetItem(ctx, model.KeyToken, *token)
		} else {
			err = s.kv.RemoveItem(ctx, model.KeyToken)
		}
	}
	if err == nil {
		return
	}

	s.log.Warn("persist credentials failed; dropping both keys", "error", err)
	s.remove(ctx, model.KeyToken)
	s.remove(ctx, model.KeyUser)
}

func (s *Store) fetchAssociations(ctx context.Context, token string) {
	list, err := s.assocs.GetUserAssociations(ctx)
	if err != nil {
		s.log.Warn("fetch associations after login failed", "error", err)
		return
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	if s.session.Token == nil || *s.session.Token != token {
		s.mu.Unlock()
		return
	}
	s.session.Associations = list
	snap := s.session.Clone()
	s.mu.Unlock()

	s.setJSON(ctx, model.KeyAssociations, list)
	s.publish(event.TypeAssociationsChanged, snap)
}

// ApplyUserPatch merges a profile update into the current user. Tokens and
// associations are left alone.
func (s *Store) ApplyUserPatch(ctx context.Context, patch model.UserPatch) error {
	return s.updateUser(ctx, patch.Apply)
}

// UpdateUserAfterPasswordChange clears the first-login flag. No-op when no
// user is loaded.
func (s *Store) UpdateUserAfterPasswordChange(ctx context.Context) {
	err := s.updateUser(ctx, func(u model.User) model.User {
		u.IsFirstLogin = false
		return u
	})
	if err != nil && !errors.Is(err, model.ErrNotAuthenticated) {
		s.log.Warn("update user after password change", "error", err)
	}
}

func (s *Store) updateUser(ctx context.Context, fn func(model.User) model.User) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	if s.session.User == nil {
		s.mu.Unlock()
		return fmt.Errorf("update user: %w", model.ErrNotAuthenticated)
	}
	user := fn(*s.session.User)
	s.session.User = &user
	snap := s.session.Clone()
	s.mu.Unlock()

	s.setJSON(ctx, model.KeyUser, user)
	s.publish(event.TypeUserUpdated, snap)
	return nil
}

// RefreshActiveAssociation re-reads the server's active association. It does
// nothing when no active association is set.
func (s *Store) RefreshActiveAssociation(ctx context.Context) error {
	s.mu.RLock()
	current := s.session.ActiveAssociation
	s.mu.RUnlock()
	if current == nil {
		return nil
	}

	active, err := s.assocs.GetActiveAssociation(ctx)
	if err != nil {
		return fmt.Errorf("refresh active association: %w", err)
	}
	s.applyActive(ctx, active)
	return nil
}

// SelectAssociation switches the active association on the server and
// mirrors the result locally.
func (s *Store) SelectAssociation(ctx context.Context, associationID string) error {
	if !s.IsAuthenticated() {
		return fmt.Errorf("select association: %w", model.ErrNotAuthenticated)
	}

	active, err := s.assocs.SetActiveAssociation(ctx, associationID)
	if err != nil {
		return fmt.Errorf("select association: %w", err)
	}
	s.applyActive(ctx, active)
	s.log.Info("active association changed", "association_id", associationID)
	return nil
}

func (s *Store) applyActive(ctx context.Context, active *model.ActiveAssociation) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	if s.session.User == nil {
		s.mu.Unlock()
		return
	}
	s.session.ActiveAssociation = active
	snap := s.session.Clone()
	s.mu.Unlock()

	if active != nil {
		s.setJSON(ctx, model.KeyActiveAssociation, active)
	} else {
		s.remove(ctx, model.KeyActiveAssociation)
	}
	s.publish(event.TypeActiveAssociationChanged, snap)
}

// Logout revokes the refresh token, clears authenticator state, memory and
// every persisted key. Calls are serialized and safe to repeat.
func (s *Store) Logout(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.tokens.RevokeRefreshToken(ctx)

	authErr := s.auth.Logout(ctx)
	if authErr != nil {
		s.log.Warn("authenticator logout failed", "error", authErr)
	}

	s.mu.Lock()
	wasSignedIn := s.session.User != nil || s.session.Token != nil
	s.session = model.Session{IsLoading: s.session.IsLoading}
	s.mu.Unlock()

	for _, key := range model.SessionKeys {
		s.remove(ctx, key)
	}
	s.tokens.Clear(ctx)

	if wasSignedIn {
		s.log.Info("logged out")
		s.publish(event.TypeSessionLoggedOut, s.Snapshot())
	}

	if authErr != nil {
		return fmt.Errorf("logout: %w", authErr)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode session value", "key", key, "error", err)
		return
	}
	if err := s.kv.SetItem(ctx, key, string(data)); err != nil {
		s.log.Warn("persist session value failed", "key", key, "error", err)
	}
}

func (s *Store) remove(ctx context.Context, key string) {
	if err := s.kv.RemoveItem(ctx, key); err != nil {
		s.log.Warn("remove session value failed", "key", key, "error", err)
	}
}

func (s *Store) publish(t event.Type, snap model.Session) {
	s.bus.Publish(event.New(t, snap))
}
