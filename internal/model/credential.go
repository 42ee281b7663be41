// Package model defines the data structures used throughout the application.
package model

import "time"

// CredentialRecord is one provider credential bound to one application user.
//
// At most one record exists per (UserID, Provider). UserID and Provider never
// change after creation. RefreshToken is only ever replaced by a non-empty
// value; ExpiresAt follows "last write wins".
//
// The `json:"-"` tags keep secrets out of API responses.
type CredentialRecord struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Provider          string    `json:"provider"`
	ProviderSubjectID string    `json:"providerSubjectId"`
	AccessToken       string    `json:"-"`
	RefreshToken      string    `json:"-"`
	ExpiresAt         time.Time `json:"expiresAt"` // zero when the provider gave no expiry
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HasRefreshToken reports whether the record can be refreshed.
func (r *CredentialRecord) HasRefreshToken() bool {
	return r.RefreshToken != ""
}

// CredentialPatch carries the fields an update may change.
//
// Empty RefreshToken, ProviderSubjectID and zero ExpiresAt mean "keep the
// stored value". AccessToken is always written.
type CredentialPatch struct {
	AccessToken       string
	RefreshToken      string
	ProviderSubjectID string
	ExpiresAt         time.Time
}
