package model

import "time"

// CredentialPayload is the canonical inbound shape produced by the ingress
// normalizer. Every field is a trimmed string; absent fields are "".
//
// ExpiryDate is kept as the caller sent it (ISO-8601 or epoch); the
// reconciler parses it during validation.
type CredentialPayload struct {
	UserID            string `json:"userId"`
	Provider          string `json:"provider"`
	AccessToken       string `json:"accessToken"`
	RefreshToken      string `json:"refreshToken,omitempty"`
	ExpiryDate        string `json:"expiryDate,omitempty"`
	ProviderSubjectID string `json:"providerSubjectId,omitempty"`
	Email             string `json:"email,omitempty"`
}

// IsEmpty reports whether nothing at all was decoded.
func (p CredentialPayload) IsEmpty() bool {
	return p == CredentialPayload{}
}

// TokenSet is what the provider's token endpoint returns.
// ExpiresInSeconds is relative; callers compute the absolute expiry.
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	IDToken          string
	ExpiresInSeconds int64
}

// ExpiresAt converts the relative lifetime to an absolute time.
// Returns the zero time when the provider sent no lifetime.
func (t *TokenSet) ExpiresAt(now time.Time) time.Time {
	if t.ExpiresInSeconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(t.ExpiresInSeconds) * time.Second)
}

// SubjectProfile is the part of the provider's user-info response we keep.
type SubjectProfile struct {
	SubjectID   string `json:"sub"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
}
