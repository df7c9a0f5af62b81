package service

import (
	"net/http"
	"strings"

	"family-session/internal/model"
	"family-session/internal/sandbox"
	"family-session/pkg/apierror"
)

type AssociationService struct {
	directory *sandbox.Directory
}

func NewAssociationService(directory *sandbox.Directory) *AssociationService {
	return &AssociationService{directory: directory}
}

func (s *AssociationService) List(userID string) ([]model.Association, error) {
	return s.directory.Associations(userID)
}

func (s *AssociationService) Active(userID string) (*model.ActiveAssociation, error) {
	return s.directory.ActiveAssociation(userID)
}

func (s *AssociationService) Select(userID string, associationID string) (*model.ActiveAssociation, error) {
	associationID = strings.TrimSpace(associationID)
	if associationID == "" {
		return nil, apierror.New("BAD_REQUEST", "associationId is required", "associationId", http.StatusBadRequest)
	}
	return s.directory.SetActiveAssociation(userID, associationID)
}
