package model

// AuthClaims are the claims the sandbox backend signs into its tokens.
type AuthClaims struct {
	UserID  string `json:"sub"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Type    string `json:"typ"`
	TokenID string `json:"jti"`
}
