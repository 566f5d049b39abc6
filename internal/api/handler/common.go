// Package handler implements the HTTP handlers of the bot API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/internal/soap"
	"github.com/algosec/algosec-go/internal/storage"
	"github.com/algosec/algosec-go/internal/validation"
)

var errInvalidBody = errors.New("invalid request body")

// errorResponse is the JSON body of an error response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &errorResponse{
		Code:    status,
		Message: message,
	})
}

// handleError converts domain and upstream errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	var validationErrs validation.ValidationErrors
	var apiErr *domain.APIError
	var fault *soap.Fault

	switch {
	case errors.As(err, &validationErrs):
		respondValidationErrors(w, validationErrs)
	case errors.Is(err, errInvalidBody):
		respondError(w, http.StatusBadRequest, "invalid request body")
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, domain.ErrChangeRequestNotFound),
		errors.Is(err, domain.ErrFlowSearchEmpty):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	case errors.As(err, &apiErr), errors.As(err, &fault), errors.Is(err, domain.ErrLoginFailed):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

// respondValidationErrors writes a JSON response for validation errors.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"errors": errs,
	})
}
