// Package sandbox is the in-memory data layer of the development backend:
// accounts loaded from a YAML fixture file, their associations and the
// refresh tokens issued to them.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"family-session/internal/model"
)

type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
}

type FixtureUser struct {
	model.User `yaml:",inline"`

	// Password is hashed at load time; PasswordHash takes precedence when set.
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`

	Associations      []model.Association `yaml:"associations"`
	ActiveAssociation string              `yaml:"active_association"`

	// DeferAssociations leaves the association list out of the login
	// response so clients have to fetch it.
	DeferAssociations bool `yaml:"defer_associations"`
}

func LoadFixtures(path string) (Fixtures, error) {
	if strings.TrimSpace(path) == "" {
		return Fixtures{}, errors.New("fixtures path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}

	return ParseFixtures(data)
}

func ParseFixtures(data []byte) (Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}

	seen := map[string]struct{}{}
	for i := range fx.Users {
		u := &fx.Users[i]
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.ID == "" || u.Email == "" {
			return Fixtures{}, fmt.Errorf("fixture user %d: id and email are required: %w", i, model.ErrInvalidInput)
		}
		if _, dup := seen[u.Email]; dup {
			return Fixtures{}, fmt.Errorf("fixture user %q: duplicate email: %w", u.Email, model.ErrInvalidInput)
		}
		seen[u.Email] = struct{}{}

		if u.PasswordHash == "" {
			if u.Password == "" {
				return Fixtures{}, fmt.Errorf("fixture user %q: password is required: %w", u.Email, model.ErrInvalidInput)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return Fixtures{}, fmt.Errorf("hash password for %q: %w", u.Email, err)
			}
			u.PasswordHash = string(hash)
		}
		u.Password = ""
	}

	return fx, nil
}
