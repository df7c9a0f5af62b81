package handler

import (
	"net/http"

	"family-session/internal/middleware"
	"family-session/internal/model"
	"family-session/internal/service"
	"family-session/pkg/apierror"
)

type AssociationHandler struct {
	service *service.AssociationService
}

func NewAssociationHandler(service *service.AssociationService) *AssociationHandler {
	return &AssociationHandler{service: service}
}

func (h *AssociationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, list)
}

// Active answers with null data when the user has no active association.
func (h *AssociationHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	active, err := h.service.Active(userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, active)
}

func (h *AssociationHandler) Select(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var payload model.SelectAssociationRequest
	if !decodeBody(w, r, &payload) {
		return
	}

	active, err := h.service.Select(userID, payload.AssociationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, active)
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return "", false
	}
	return claims.UserID, true
}
