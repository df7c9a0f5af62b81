package model

// Session is the root aggregate owned by the session store. Authentication is
// derived from User and Token and is never stored on its own.
type Session struct {
	User              *User              `json:"user"`
	Token             *string            `json:"token"`
	Associations      []Association      `json:"associations"`
	ActiveAssociation *ActiveAssociation `json:"activeAssociation"`
	IsLoading         bool               `json:"isLoading"`
}

func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.Token != nil
}

// Clone returns a deep enough copy for readers: mutating the result never
// reaches the store's own records.
func (s Session) Clone() Session {
	out := Session{IsLoading: s.IsLoading}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Token != nil {
		t := *s.Token
		out.Token = &t
	}
	if s.ActiveAssociation != nil {
		a := *s.ActiveAssociation
		out.ActiveAssociation = &a
	}
	if s.Associations != nil {
		out.Associations = make([]Association, len(s.Associations))
		copy(out.Associations, s.Associations)
	}
	return out
}

// Persisted keys. Each lives independently so that it can be read, written
// and invalidated on its own.
const (
	KeyToken             = "token"
	KeyUser              = "user"
	KeyAssociations      = "associations"
	KeyActiveAssociation = "activeAssociation"
	KeyTokenPair         = "tokenPair"
)

var SessionKeys = []string{KeyToken, KeyUser, KeyAssociations, KeyActiveAssociation}
