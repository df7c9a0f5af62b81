package model

type Role struct {
	ID          string `json:"_id" yaml:"id"`
	Name        string `json:"nombre" yaml:"name"`
	Description string `json:"descripcion,omitempty" yaml:"description"`
}

type User struct {
	ID           string `json:"_id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Email        string `json:"email" yaml:"email"`
	Role         Role   `json:"role" yaml:"role"`
	IsFirstLogin bool   `json:"isFirstLogin" yaml:"first_login"`
	IsFederated  bool   `json:"isFederated" yaml:"federated"`
}

// UserPatch carries a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Role         *Role   `json:"role,omitempty"`
	IsFirstLogin *bool   `json:"isFirstLogin,omitempty"`
}

func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsFirstLogin != nil {
		u.IsFirstLogin = *p.IsFirstLogin
	}
	return u
}

// TokenPair is the client-side view of an issued credential. ExpiresAt is
// always computed locally from the issue time and TokenExpiresIn.
type TokenPair struct {
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken"`
	TokenExpiresIn int64  `json:"tokenExpiresIn"`
	ExpiresAt      int64  `json:"expiresAt,omitempty"`
}

// AuthResult is the normalized outcome of a credential exchange, regardless
// of whether the legacy or the federated path served it.
type AuthResult struct {
	User              *User              `json:"user"`
	AccessToken       string             `json:"accessToken"`
	RefreshToken      string             `json:"refreshToken"`
	TokenExpiresIn    int64              `json:"tokenExpiresIn"`
	ActiveAssociation *ActiveAssociation `json:"activeAssociation,omitempty"`
	Associations      []Association      `json:"associations,omitempty"`
	IsFederatedUser   bool               `json:"isFederatedUser"`
}

func (r AuthResult) Tokens() TokenPair {
	return TokenPair{
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenExpiresIn: r.TokenExpiresIn,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SelectAssociationRequest struct {
	AssociationID string `json:"associationId"`
}
