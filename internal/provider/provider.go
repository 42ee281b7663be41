// Package provider talks to the identity provider's OAuth2 endpoints.
//
// It is a thin wrapper around golang.org/x/oauth2: every operation makes one
// outbound request, keeps no state and does no clock arithmetic. Failures come
// back as *apperror.AppError matching apperror.ErrProvider, carrying the HTTP
// status and the provider's error code when there was a response.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/model"
)

const (
	Google = "google"

	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	DefaultTimeout     = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// DefaultScopes asks for the subject id, email and display name.
var DefaultScopes = []string{"openid", "email", "profile"}

// Config overrides the Google defaults. Empty fields keep the default.
type Config struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Scopes      []string

	// HTTPClient is used for every outbound call. Its Timeout bounds each call.
	HTTPClient *http.Client
}

// Client performs token exchanges against one provider.
type Client struct {
	endpoint    oauth2.Endpoint
	userInfoURL string
	scopes      []string
	http        *http.Client
	logger      *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	endpoint := endpoints.Google
	// Credentials go in the form body, so a failed exchange is never retried
	// with a different auth style.
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		endpoint:    endpoint,
		userInfoURL: userInfoURL,
		scopes:      scopes,
		http:        httpClient,
		logger:      logger,
	}
}

func (c *Client) oauthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       c.scopes,
		Endpoint:     c.endpoint,
	}
}

// withHTTPClient makes x/oauth2 use our client instead of http.DefaultClient.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// AuthCodeURL builds the consent URL. access_type=offline with
// prompt=consent makes the provider issue a refresh token every time.
func (c *Client) AuthCodeURL(clientID, redirectURI, state string) string {
	cfg := c.oauthConfig(clientID, "", redirectURI)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAuthorizationCode trades a one-time code for a token set.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*model.TokenSet, error) {
	cfg := c.oauthConfig(clientID, clientSecret, redirectURI)

	tok, err := cfg.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, c.providerError("code exchange", err)
	}

	return tokenSet(tok), nil
}

// RefreshAccessToken obtains a new access token. When the provider does not
// rotate the refresh token the returned set carries the one passed in.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientSecret string) (*model.TokenSet, error) {
	if refreshToken == "" {
		return nil, apperror.ValidationFailed("refreshToken", "refresh token is required")
	}
	cfg := c.oauthConfig(clientID, clientSecret, "")

	src := cfg.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.providerError("token refresh", err)
	}

	ts := tokenSet(tok)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// FetchSubjectProfile calls the user-info endpoint with bearer auth.
func (c *Client) FetchSubjectProfile(ctx context.Context, accessToken string) (*model.SubjectProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: building user-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.providerError("user-info", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.providerError("user-info", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := errorCode(body)
		c.logger.Warn("user-info request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("code", code),
		)
		return nil, apperror.ProviderFailed(resp.StatusCode, code,
			fmt.Errorf("user-info returned status %d", resp.StatusCode))
	}

	var profile model.SubjectProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, apperror.ProviderFailed(resp.StatusCode, "invalid_response",
			fmt.Errorf("decoding user-info response: %w", err))
	}
	if profile.SubjectID == "" {
		return nil, apperror.ProviderFailed(resp.StatusCode, "invalid_response",
			errors.New("user-info response has no subject id"))
	}

	return &profile, nil
}

// SubjectFromIDToken reads the sub, email and name claims of an id_token
// without verifying its signature. The token arrived over TLS straight from
// the token endpoint; it is only a fallback for a failed user-info call.
func (c *Client) SubjectFromIDToken(idToken string) (*model.SubjectProfile, error) {
	if idToken == "" {
		return nil, apperror.DecodingFailed("id_token", errors.New("empty id_token"))
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, apperror.DecodingFailed("id_token", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperror.DecodingFailed("id_token", errors.New("id_token has no sub claim"))
	}

	profile := &model.SubjectProfile{SubjectID: sub}
	profile.Email, _ = claims["email"].(string)
	profile.DisplayName, _ = claims["name"].(string)
	return profile, nil
}

// providerError maps x/oauth2 and transport failures onto apperror.
func (c *Client) providerError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		code := retrieveErr.ErrorCode
		if code == "" {
			code = errorCode(retrieveErr.Body)
		}
		c.logger.Warn("provider rejected request",
			slog.String("op", op),
			slog.Int("status", status),
			slog.String("code", code),
		)
		return apperror.ProviderFailed(status, code, err)
	}

	c.logger.Warn("provider request failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return apperror.ProviderFailed(0, "", err)
}

func tokenSet(tok *oauth2.Token) *model.TokenSet {
	ts := &model.TokenSet{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresInSeconds: tok.ExpiresIn,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = id
	}
	if ts.ExpiresInSeconds == 0 {
		ts.ExpiresInSeconds = expiresIn(tok.Extra("expires_in"))
	}
	return ts
}

// expiresIn reads the raw expires_in value, which is a JSON number for JSON
// responses and a string for form-encoded ones.
func expiresIn(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// errorCode extracts the provider error code from an error body. Both the
// OAuth2 form ({"error": "invalid_grant"}) and the Google API form
// ({"error": {"status": "UNAUTHENTICATED"}}) are understood.
func errorCode(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	e := gjson.GetBytes(body, "error")
	if e.IsObject() {
		return e.Get("status").String()
	}
	return e.String()
}
