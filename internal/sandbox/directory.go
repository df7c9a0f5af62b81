package sandbox

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"family-session/internal/model"
	"family-session/pkg/apierror"
)

type account struct {
	user              model.User
	passwordHash      string
	associations      []model.Association
	activeID          string
	deferAssociations bool
}

type refreshGrant struct {
	userID    string
	expiresAt time.Time
}

// Directory holds every account and outstanding refresh token. Safe for
// concurrent use.
type Directory struct {
	mu            sync.RWMutex
	byEmail       map[string]*account
	byID          map[string]*account
	refreshTokens map[string]refreshGrant
}

func NewDirectory(fx Fixtures) *Directory {
	d := &Directory{
		byEmail:       map[string]*account{},
		byID:          map[string]*account{},
		refreshTokens: map[string]refreshGrant{},
	}

	for _, u := range fx.Users {
		acc := &account{
			user:              u.User,
			passwordHash:      u.PasswordHash,
			associations:      append([]model.Association(nil), u.Associations...),
			activeID:          u.ActiveAssociation,
			deferAssociations: u.DeferAssociations,
		}
		d.byEmail[u.Email] = acc
		d.byID[u.ID] = acc
	}

	return d
}

// Credentials returns the user and its password hash.
func (d *Directory) Credentials(email string) (model.User, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, "", model.ErrUserNotFound
	}
	return acc.user, acc.passwordHash, nil
}

func (d *Directory) User(id string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return acc.user, nil
}

// DefersAssociations reports whether login responses for the user omit the
// association list.
func (d *Directory) DefersAssociations(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.byID[userID]
	return ok && acc.deferAssociations
}

func (d *Directory) Associations(userID string) ([]model.Association, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.byID[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := make([]model.Association, len(acc.associations))
	copy(out, acc.associations)
	return out, nil
}

// ActiveAssociation returns nil when the user has not selected one.
func (d *Directory) ActiveAssociation(userID string) (*model.ActiveAssociation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.byID[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return acc.activeLocked(), nil
}

func (d *Directory) SetActiveAssociation(userID string, associationID string) (*model.ActiveAssociation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc, ok := d.byID[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	for _, a := range acc.associations {
		if a.ID == associationID {
			acc.activeID = associationID
			return acc.activeLocked(), nil
		}
	}
	return nil, apierror.New("NOT_FOUND", "association not found", associationID, http.StatusNotFound)
}

func (a *account) activeLocked() *model.ActiveAssociation {
	if a.activeID == "" {
		return nil
	}
	for _, assoc := range a.associations {
		if assoc.ID == a.activeID {
			active := assoc.ToActive()
			return &active
		}
	}
	return nil
}

func (d *Directory) StoreRefreshToken(token string, userID string, expiresAt time.Time) {
	d.mu.Lock()
	d.refreshTokens[token] = refreshGrant{userID: userID, expiresAt: expiresAt}
	d.mu.Unlock()
}

// ConsumeRefreshToken removes the token and returns its owner. Each refresh
// token is single use.
func (d *Directory) ConsumeRefreshToken(token string, now time.Time) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	grant, ok := d.refreshTokens[token]
	if !ok {
		return "", model.ErrTokenNotFound
	}
	delete(d.refreshTokens, token)
	if !now.Before(grant.expiresAt) {
		return "", model.ErrTokenNotFound
	}
	return grant.userID, nil
}

// RevokeRefreshToken is idempotent.
func (d *Directory) RevokeRefreshToken(token string) {
	d.mu.Lock()
	delete(d.refreshTokens, token)
	d.mu.Unlock()
}

func (d *Directory) OutstandingRefreshTokens() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.refreshTokens)
}
