package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON, and every error through
// writeError, so all endpoints share one error shape:
//   {"error": "validation_error", "message": "userId is required"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/token-keeper/internal/apperror"
)

// ErrorResponse is the error body returned by the OAuth endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`          // machine-readable kind, e.g. "provider_error"
	Message string `json:"message"`        // human-readable description
	Code    string `json:"code,omitempty"` // provider error code, when there is one
}

// writeJSON sets headers and status before the body; header changes after
// the first Write are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps an application error to an HTTP status.
//
// ERROR MAPPING:
//
//	ErrValidation, ErrDecoding → 400
//	ErrNotFound                → 404
//	ErrConflict                → 409 (checked before ErrStorage; a conflict matches both)
//	ErrProvider                → 502
//	ErrStorage, anything else  → 500
//
// Storage and unknown errors get a generic message. Their text can carry
// file paths or SQL.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		resp = ErrorResponse{Error: "validation_error", Message: appErr.Message}
	case errors.Is(err, apperror.ErrDecoding):
		status = http.StatusBadRequest
		resp = ErrorResponse{Error: "decoding_error", Message: appErr.Message}
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		resp = ErrorResponse{Error: "not_found", Message: appErr.Message}
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		resp = ErrorResponse{Error: "conflict", Message: appErr.Message}
	case errors.Is(err, apperror.ErrProvider):
		status = http.StatusBadGateway
		resp = ErrorResponse{Error: "provider_error", Message: appErr.Message, Code: appErr.Code}
	}

	writeJSON(w, status, resp)
}
