// Package auth signs the OAuth state parameter and guards the service API.
//
// OAUTH STATE AS A JWT:
// The login redirect must carry the application user id through the
// provider round trip, and the callback must be able to trust it. Instead of
// a server-side session, the state is a short-lived HS256 JWT:
//
//	{"sub": "<userId>", "jti": "<xid>", "aud": ["oauth-state"], "exp": ...}
//
// The signature stops a forged callback from attaching tokens to another
// user. The jti makes every state value unique.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	StateTTL = 10 * time.Minute

	stateIssuer   = "token-keeper"
	stateAudience = "oauth-state"
	minSecretLen  = 32
)

// ErrInvalidState is returned for any state that fails verification.
var ErrInvalidState = errors.New("auth: invalid oauth state")

// StateService issues and verifies OAuth state values.
type StateService struct {
	secret []byte
	now    func() time.Time
}

// NewStateService creates a StateService. The secret should be at least 32
// bytes of random data, e.g. STATE_SECRET=$(openssl rand -hex 32).
func NewStateService(secret string) (*StateService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: state secret must be at least %d characters", minSecretLen)
	}
	return &StateService{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a state value carrying userID, valid for StateTTL.
func (s *StateService) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("auth: state needs a user id")
	}
	now := s.now()

	c := jwt.RegisteredClaims{
		ID:        xid.New().String(),
		Subject:   userID,
		Issuer:    stateIssuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing state: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, audience and expiry of state and
// returns the user id it carries. Every failure matches ErrInvalidState.
func (s *StateService) Verify(state string) (string, error) {
	token, err := jwt.ParseWithClaims(
		state,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: expired", ErrInvalidState)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidState)
	}
	return c.Subject, nil
}
