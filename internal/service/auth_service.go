package service

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"family-session/internal/model"
	"family-session/internal/sandbox"
	"family-session/pkg/apierror"
)

// CodeFederatedUser tells a legacy client to retry through the federated
// login endpoint.
const CodeFederatedUser = "FEDERATED_USER"

type AuthService struct {
	directory  *sandbox.Directory
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthService(directory *sandbox.Directory, jwtSecret string, accessTTL time.Duration, refreshTTL time.Duration) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if directory == nil {
		return nil, errors.New("directory is required")
	}

	return &AuthService{
		directory:  directory,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Login serves both login paths. federated selects the identity-provider
// path; a federated account on the legacy path is redirected.
func (s *AuthService) Login(email string, password string, federated bool) (model.AuthResult, error) {
	user, hash, err := s.directory.Credentials(email)
	if err != nil {
		return model.AuthResult{}, apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return model.AuthResult{}, apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	}

	if user.IsFederated && !federated {
		return model.AuthResult{}, apierror.New(CodeFederatedUser, "account must sign in through the identity provider", user.Email, http.StatusConflict)
	}
	if !user.IsFederated && federated {
		return model.AuthResult{}, apierror.New("BAD_REQUEST", "account is not federated", user.Email, http.StatusBadRequest)
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return model.AuthResult{}, err
	}

	active, err := s.directory.ActiveAssociation(user.ID)
	if err != nil {
		return model.AuthResult{}, err
	}

	result := model.AuthResult{
		User:              &user,
		AccessToken:       pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
		TokenExpiresIn:    pair.TokenExpiresIn,
		ActiveAssociation: active,
		IsFederatedUser:   federated,
	}

	if !s.directory.DefersAssociations(user.ID) {
		result.Associations, err = s.directory.Associations(user.ID)
		if err != nil {
			return model.AuthResult{}, err
		}
	}

	return result, nil
}

// Refresh rotates the refresh token: the presented one stops working.
func (s *AuthService) Refresh(refreshToken string) (model.TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken, "refresh")
	if err != nil {
		return model.TokenPair{}, err
	}

	ownerID, err := s.directory.ConsumeRefreshToken(refreshToken, s.now())
	if err != nil || ownerID != claims.UserID {
		return model.TokenPair{}, apierror.New("UNAUTHORIZED", "refresh token is invalid", "", http.StatusUnauthorized)
	}

	user, err := s.directory.User(claims.UserID)
	if err != nil {
		return model.TokenPair{}, apierror.New("UNAUTHORIZED", "user not found", "", http.StatusUnauthorized)
	}

	return s.issueTokenPair(user)
}

func (s *AuthService) Revoke(refreshToken string) {
	s.directory.RevokeRefreshToken(refreshToken)
}

func (s *AuthService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.New("UNAUTHORIZED", "invalid token signing method", "", http.StatusUnauthorized)
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, apierror.New("UNAUTHORIZED", "invalid token", "", http.StatusUnauthorized)
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.New("UNAUTHORIZED", "invalid token claims", "", http.StatusUnauthorized)
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, apierror.New("UNAUTHORIZED", "invalid token type", "", http.StatusUnauthorized)
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.New("UNAUTHORIZED", "invalid token subject", "", http.StatusUnauthorized)
	}

	return claims, nil
}

func (s *AuthService) issueTokenPair(user model.User) (model.TokenPair, error) {
	now := s.now().UTC()

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role.Name,
		"typ":   "access",
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshExpiry := now.Add(s.refreshTTL)
	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role.Name,
		"typ":   "refresh",
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   refreshExpiry.Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	s.directory.StoreRefreshToken(refreshToken, user.ID, refreshExpiry)

	return model.TokenPair{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresIn: int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
