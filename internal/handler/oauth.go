package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/token-keeper/internal/service"
)

// OAuthFlow is the provider-facing side of the service layer.
type OAuthFlow interface {
	AuthURL(userID string) (string, error)
	CompleteAuthorization(ctx context.Context, code, state string) (*service.AuthorizationResult, error)
	Refresh(ctx context.Context, req service.RefreshRequest) (*service.RefreshResult, error)
}

// OAuthHandler runs the Google consent flow and token refresh.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → redirect the browser to the consent page
//   - HandleCallback → exchange the code and store the credential
//   - HandleRefresh  → refresh a stored credential on behalf of a backend
//
// The user id travels inside the signed state parameter, so the callback
// needs no cookie or session.
type OAuthHandler struct {
	flow   OAuthFlow
	logger *slog.Logger
}

func NewOAuthHandler(flow OAuthFlow, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{flow: flow, logger: logger}
}

// HandleLogin redirects to the provider consent page.
//
// HTTP: GET /auth/google?userId=xxx
func (h *OAuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := h.flow.AuthURL(r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleCallback completes the consent flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// A provider-side denial arrives as ?error=access_denied and is reported
// without calling the token endpoint.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization denied", slog.String("error", errParam))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "authorization_denied",
			Message: "the provider did not grant access",
			Code:    errParam,
		})
		return
	}

	res, err := h.flow.CompleteAuthorization(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		h.logger.Error("oauth callback failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleRefresh refreshes the access token for a stored credential.
//
// HTTP: POST /auth/refresh
// Body: {"userId": "...", "provider": "google", "refreshToken": "..."}
func (h *OAuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req service.RefreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "request body must be a JSON object",
		})
		return
	}

	res, err := h.flow.Refresh(r.Context(), req)
	if err != nil {
		h.logger.Warn("token refresh failed",
			slog.String("userId", req.UserID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
