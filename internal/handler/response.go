package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"family-session/internal/model"
	"family-session/pkg/apierror"
)

// sentinelErrors maps directory sentinels to the envelope the client expects.
var sentinelErrors = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{model.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND", "User not found"},
	{model.ErrAssociationNotFound, http.StatusNotFound, "NOT_FOUND", "Association not found"},
	{model.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials"},
	{model.ErrTokenNotFound, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token"},
	{model.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST", "Invalid input"},
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, model.APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		writeEnvelope(w, apiErr.HTTPStatus, model.APIResponse{Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}})
		return
	}

	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			writeEnvelope(w, s.status, model.APIResponse{Error: &model.APIError{Code: s.code, Message: s.message}})
			return
		}
	}

	slog.Error("unhandled error in writeError", "error", err)
	writeEnvelope(w, http.StatusInternalServerError, model.APIResponse{Error: &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}})
}

func writeEnvelope(w http.ResponseWriter, status int, body model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeBody reads a JSON request body, answering 400 when it is not valid.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return false
	}
	return true
}
