package model

import "time"

// Identity is a link between an application user and a provider-assigned
// subject id. Links are advisory metadata; the CredentialRecord is the
// authoritative credential.
type Identity struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Provider          string    `json:"provider"`
	ProviderSubjectID string    `json:"providerSubjectId"`
	Email             string    `json:"email"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// IdentityLink is the input for creating an identity link.
type IdentityLink struct {
	UserID            string
	Provider          string
	ProviderSubjectID string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
	Email             string
}
