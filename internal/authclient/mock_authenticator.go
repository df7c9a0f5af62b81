package authclient

import (
	"context"

	"github.com/stretchr/testify/mock"

	"family-session/internal/model"
)

// MockAuthenticator stands in for both the credential and the association
// endpoints.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, email string, password string) (model.AuthResult, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(model.AuthResult), args.Error(1)
}

func (m *MockAuthenticator) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(model.TokenPair), args.Error(1)
}

func (m *MockAuthenticator) Revoke(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *MockAuthenticator) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAuthenticator) GetUserAssociations(ctx context.Context) ([]model.Association, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]model.Association)
	return list, args.Error(1)
}

func (m *MockAuthenticator) GetActiveAssociation(ctx context.Context) (*model.ActiveAssociation, error) {
	args := m.Called(ctx)
	active, _ := args.Get(0).(*model.ActiveAssociation)
	return active, args.Error(1)
}

func (m *MockAuthenticator) SetActiveAssociation(ctx context.Context, associationID string) (*model.ActiveAssociation, error) {
	args := m.Called(ctx, associationID)
	active, _ := args.Get(0).(*model.ActiveAssociation)
	return active, args.Error(1)
}
