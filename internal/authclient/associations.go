package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"family-session/internal/model"
	"family-session/pkg/apierror"
)

// Associations lists and switches the user's memberships. Its HTTP client is
// expected to carry the bearer token (see transport.Transport).
type Associations struct {
	client     *Client
	httpClient *http.Client
}

func (c *Client) Associations(authorized *http.Client) *Associations {
	return &Associations{client: c, httpClient: authorized}
}

func (a *Associations) GetUserAssociations(ctx context.Context) ([]model.Association, error) {
	var list []model.Association
	if err := a.client.do(ctx, a.httpClient, http.MethodGet, "/associations", nil, &list); err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	if list == nil {
		list = []model.Association{}
	}
	return list, nil
}

// GetActiveAssociation returns nil when the server has no active association
// for the user.
func (a *Associations) GetActiveAssociation(ctx context.Context) (*model.ActiveAssociation, error) {
	var active *model.ActiveAssociation
	if err := a.client.do(ctx, a.httpClient, http.MethodGet, "/associations/active", nil, &active); err != nil {
		return nil, fmt.Errorf("get active association: %w", err)
	}
	return active, nil
}

func (a *Associations) SetActiveAssociation(ctx context.Context, associationID string) (*model.ActiveAssociation, error) {
	associationID = strings.TrimSpace(associationID)
	if associationID == "" {
		return nil, fmt.Errorf("set active association: %w", model.ErrInvalidInput)
	}

	var active *model.ActiveAssociation
	err := a.client.do(ctx, a.httpClient, http.MethodPut, "/associations/active",
		model.SelectAssociationRequest{AssociationID: associationID}, &active)
	if err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusNotFound {
			err = apiErr.WithKind(model.ErrAssociationNotFound)
		}
		return nil, fmt.Errorf("set active association: %w", err)
	}
	if active == nil {
		return nil, fmt.Errorf("set active association: %w", model.ErrAssociationNotFound)
	}
	return active, nil
}
