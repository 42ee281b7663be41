package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/token-keeper/internal/ingress"
	"github.com/sakif/token-keeper/internal/service"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// Upserter is the reconciliation entry point.
type Upserter interface {
	Upsert(ctx context.Context, raw any) service.Response
}

// TokenHandler exposes credential upserts over HTTP.
//
// DEPENDENCIES:
//   - upserter Upserter → normally *service.Reconciler
//
// The handler does no validation of its own. It hands the raw body to the
// service and translates Response.Status into an HTTP status code.
type TokenHandler struct {
	upserter Upserter
	logger   *slog.Logger
}

func NewTokenHandler(upserter Upserter, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{upserter: upserter, logger: logger}
}

// HandleUpsert creates or updates a user's credential.
//
// HTTP: POST /api/tokens
//
// The body is handed to the normalizer untouched, so it may be a JSON object,
// a JSON string holding one, or an object whose "data" field holds one. The
// response body is always a service.Response; the status code follows
// Response.Status.
func (h *TokenHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("reading upsert body failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, service.Response{
			Success: false,
			Message: "could not read request body",
			Status:  service.StatusBadRequest,
		})
		return
	}

	// WHY NOT json.Decode HERE?
	// Callers send the same payload in several shapes (plain object, JSON
	// string, {"data": "..."}). Decoding is the normalizer's job; the handler
	// passes the bytes through as a string body.
	resp := h.upserter.Upsert(r.Context(), ingress.Envelope{Body: string(body)})
	writeJSON(w, httpStatus(resp.Status), resp)
}

func httpStatus(s service.Status) int {
	switch s {
	case service.StatusOK:
		return http.StatusOK
	case service.StatusBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
