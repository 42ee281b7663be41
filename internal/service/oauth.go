package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/model"
)

// TokenProvider is the provider token client.
type TokenProvider interface {
	AuthCodeURL(clientID, redirectURI, state string) string
	ExchangeAuthorizationCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*model.TokenSet, error)
	RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientSecret string) (*model.TokenSet, error)
	FetchSubjectProfile(ctx context.Context, accessToken string) (*model.SubjectProfile, error)
	SubjectFromIDToken(idToken string) (*model.SubjectProfile, error)
}

// StateIssuer signs and verifies the OAuth state parameter.
type StateIssuer interface {
	Issue(userID string) (string, error)
	Verify(state string) (string, error)
}

// OAuthConfig identifies this application to the provider.
type OAuthConfig struct {
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// OAuthService runs the provider side of the token lifecycle and persists
// the results through the Reconciler.
//
//	AuthURL               → consent redirect with signed state
//	CompleteAuthorization → code exchange, subject lookup, reconcile
//	Refresh               → refresh-token grant, reconcile
//
// DEPENDENCIES:
//   - provider   TokenProvider   → the provider's token and user-info endpoints
//   - states     StateIssuer     → signs the userId into the OAuth state
//   - reconciler *Reconciler     → the only writer of credential records
//   - store      CredentialStore → read-only here, to find the stored refresh token
//
// WHY GO THROUGH THE RECONCILER?
// A callback or refresh produces the same payload an upsert request does.
// Sending it through Reconcile keeps one merge policy for every writer: a
// refresh that returns no new refresh token leaves the stored one in place.
type OAuthService struct {
	provider   TokenProvider
	states     StateIssuer
	reconciler *Reconciler
	store      CredentialStore
	cfg        OAuthConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewOAuthService(
	provider TokenProvider,
	states StateIssuer,
	reconciler *Reconciler,
	store CredentialStore,
	cfg OAuthConfig,
	logger *slog.Logger,
) *OAuthService {
	return &OAuthService{
		provider:   provider,
		states:     states,
		reconciler: reconciler,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// AuthorizationResult is returned by CompleteAuthorization.
type AuthorizationResult struct {
	RecordID  string    `json:"recordId"`
	Created   bool      `json:"created"`
	UserID    string    `json:"userId"`
	Provider  string    `json:"provider"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RefreshRequest asks for a new access token. Provider defaults to the
// configured provider; RefreshToken defaults to the stored one.
type RefreshRequest struct {
	UserID       string `json:"userId"`
	Provider     string `json:"provider,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RecordID    string    `json:"recordId"`
}

// AuthURL returns the provider consent URL for userID.
func (s *OAuthService) AuthURL(userID string) (string, error) {
	if userID == "" {
		return "", apperror.ValidationFailed("userId", "userId is required")
	}

	state, err := s.states.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("service/oauth: issuing state: %w", err)
	}

	return s.provider.AuthCodeURL(s.cfg.ClientID, s.cfg.RedirectURI, state), nil
}

// CompleteAuthorization handles the provider callback.
//
// The subject id comes from the user-info endpoint, or from the id_token
// when that call fails. Without either the credential is still stored.
func (s *OAuthService) CompleteAuthorization(ctx context.Context, code, state string) (*AuthorizationResult, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is required")
	}
	userID, err := s.states.Verify(state)
	if err != nil {
		s.logger.Warn("oauth callback with invalid state", slog.String("error", err.Error()))
		return nil, apperror.ValidationFailed("state", "invalid or expired state")
	}

	tokens, err := s.provider.ExchangeAuthorizationCode(ctx, code, s.cfg.ClientID, s.cfg.ClientSecret, s.cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("service/oauth: exchanging code: %w", err)
	}
	if tokens.RefreshToken == "" {
		s.logger.Warn("provider returned no refresh token", slog.String("userId", userID))
	}

	profile := s.subjectProfile(ctx, tokens)
	expiresAt := tokens.ExpiresAt(s.now())

	payload := model.CredentialPayload{
		UserID:       userID,
		Provider:     s.cfg.Provider,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiryDate:   formatExpiry(expiresAt),
	}
	if profile != nil {
		payload.ProviderSubjectID = profile.SubjectID
		payload.Email = profile.Email
	}

	res, err := s.reconciler.Reconcile(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("service/oauth: storing credential: %w", err)
	}

	return &AuthorizationResult{
		RecordID:  res.RecordID,
		Created:   res.Created,
		UserID:    userID,
		Provider:  s.cfg.Provider,
		Email:     payload.Email,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *OAuthService) subjectProfile(ctx context.Context, tokens *model.TokenSet) *model.SubjectProfile {
	profile, err := s.provider.FetchSubjectProfile(ctx, tokens.AccessToken)
	if err == nil {
		return profile
	}
	s.logger.Warn("user-info lookup failed, falling back to id_token", slog.String("error", err.Error()))

	if tokens.IDToken == "" {
		return nil
	}
	profile, err = s.provider.SubjectFromIDToken(tokens.IDToken)
	if err != nil {
		s.logger.Warn("id_token has no usable subject", slog.String("error", err.Error()))
		return nil
	}
	return profile
}

// Refresh exchanges a refresh token for a new access token and stores it.
// A rotated refresh token replaces the stored one; otherwise it is kept.
func (s *OAuthService) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	if req.UserID == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	provider := req.Provider
	if provider == "" {
		provider = s.cfg.Provider
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		rec, err := s.store.Find(ctx, req.UserID, provider)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("userId", "no stored credential for this user and provider")
		}
		if err != nil {
			return nil, fmt.Errorf("service/oauth: loading credential: %w", err)
		}
		if !rec.HasRefreshToken() {
			return nil, apperror.ValidationFailed("refreshToken", "no refresh token stored for this user and provider")
		}
		refreshToken = rec.RefreshToken
	}

	tokens, err := s.provider.RefreshAccessToken(ctx, refreshToken, s.cfg.ClientID, s.cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("service/oauth: refreshing token: %w", err)
	}

	expiresAt := tokens.ExpiresAt(s.now())
	res, err := s.reconciler.Reconcile(ctx, model.CredentialPayload{
		UserID:       req.UserID,
		Provider:     provider,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiryDate:   formatExpiry(expiresAt),
	})
	if err != nil {
		return nil, fmt.Errorf("service/oauth: storing refreshed credential: %w", err)
	}

	s.logger.Info("access token refreshed",
		slog.String("userId", req.UserID),
		slog.String("provider", provider),
		slog.String("recordId", res.RecordID),
	)

	return &RefreshResult{
		AccessToken: tokens.AccessToken,
		ExpiresAt:   expiresAt,
		RecordID:    res.RecordID,
	}, nil
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
