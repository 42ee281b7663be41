// Package identity resolves provider identities linked to application users.
//
// Identity links are advisory: the resolver never fails a caller. A missing
// or broken directory reads as "no identity found".
package identity

//go:generate mockgen -destination=mock_directory_test.go -package=identity . Directory,SubjectDirectory

import (
	"context"

	"github.com/sakif/token-keeper/internal/model"
)

// Directory is the user/identity directory the resolver reads and writes.
//
// UpdateIdentity refreshes the token data of an existing link. Empty
// RefreshToken, Email and zero ExpiresAt keep the stored values.
type Directory interface {
	GetIdentities(ctx context.Context, userID string) ([]model.Identity, error)
	LinkIdentity(ctx context.Context, link model.IdentityLink) error
	UpdateIdentity(ctx context.Context, id string, link model.IdentityLink) error
}

// SubjectLookup is implemented by directories that can search across users
// by provider subject id.
type SubjectLookup interface {
	FindBySubject(ctx context.Context, provider, subjectID string) (*model.Identity, error)
}

// SubjectDirectory is a Directory that also supports SubjectLookup.
type SubjectDirectory interface {
	Directory
	SubjectLookup
}
