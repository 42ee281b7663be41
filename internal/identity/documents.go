package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/token-keeper/internal/model"
	"github.com/sakif/token-keeper/internal/repository"
)

// Field names of an identity document.
const (
	fieldUserID       = "userId"
	fieldProvider     = "provider"
	fieldSubjectID    = "providerSubjectId"
	fieldEmail        = "email"
	fieldAccessToken  = "accessToken"
	fieldRefreshToken = "refreshToken"
	fieldExpiryDate   = "expiryDate"
)

var _ SubjectDirectory = (*DocumentDirectory)(nil)

// DocumentDirectory keeps identity links in a document-store collection.
type DocumentDirectory struct {
	store      repository.DocumentStore
	collection repository.Collection
}

// NewDocumentDirectory declares (provider, providerSubjectId) unique in the
// collection, so one subject can only ever be linked once.
func NewDocumentDirectory(ctx context.Context, store repository.DocumentStore, collection repository.Collection) (*DocumentDirectory, error) {
	if err := store.EnsureUnique(ctx, collection, fieldProvider, fieldSubjectID); err != nil {
		return nil, fmt.Errorf("identity: preparing %s: %w", collection, err)
	}
	return &DocumentDirectory{store: store, collection: collection}, nil
}

func (d *DocumentDirectory) GetIdentities(ctx context.Context, userID string) ([]model.Identity, error) {
	docs, err := d.store.ListWhere(ctx, d.collection, repository.Equal(fieldUserID, userID))
	if err != nil {
		return nil, fmt.Errorf("identity: listing identities for user: %w", err)
	}

	identities := make([]model.Identity, 0, len(docs))
	for _, doc := range docs {
		identities = append(identities, toIdentity(doc))
	}
	return identities, nil
}

func (d *DocumentDirectory) LinkIdentity(ctx context.Context, link model.IdentityLink) error {
	expiry := formatExpiry(link.ExpiresAt)

	_, err := d.store.Insert(ctx, d.collection, repository.Document{
		Fields: map[string]any{
			fieldUserID:       link.UserID,
			fieldProvider:     link.Provider,
			fieldSubjectID:    link.ProviderSubjectID,
			fieldEmail:        link.Email,
			fieldAccessToken:  link.AccessToken,
			fieldRefreshToken: link.RefreshToken,
			fieldExpiryDate:   expiry,
		},
	})
	if err != nil {
		return fmt.Errorf("identity: linking identity: %w", err)
	}
	return nil
}

// UpdateIdentity patches the token data of link id. The access token is
// always replaced; refresh token, email and expiry only when supplied, the
// same policy as the credential record.
func (d *DocumentDirectory) UpdateIdentity(ctx context.Context, id string, link model.IdentityLink) error {
	fields := map[string]any{
		fieldAccessToken: link.AccessToken,
	}
	if link.RefreshToken != "" {
		fields[fieldRefreshToken] = link.RefreshToken
	}
	if link.Email != "" {
		fields[fieldEmail] = link.Email
	}
	if !link.ExpiresAt.IsZero() {
		fields[fieldExpiryDate] = formatExpiry(link.ExpiresAt)
	}

	if _, err := d.store.Patch(ctx, d.collection, id, fields); err != nil {
		return fmt.Errorf("identity: updating identity %s: %w", id, err)
	}
	return nil
}

// FindBySubject returns the oldest link for the subject, or nil.
func (d *DocumentDirectory) FindBySubject(ctx context.Context, provider, subjectID string) (*model.Identity, error) {
	docs, err := d.store.ListWhere(ctx, d.collection,
		repository.Equal(fieldProvider, provider),
		repository.Equal(fieldSubjectID, subjectID),
	)
	if err != nil {
		return nil, fmt.Errorf("identity: finding subject: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	ident := toIdentity(docs[0])
	return &ident, nil
}

func toIdentity(doc repository.Document) model.Identity {
	ident := model.Identity{
		ID:                doc.ID,
		UserID:            doc.String(fieldUserID),
		Provider:          doc.String(fieldProvider),
		ProviderSubjectID: doc.String(fieldSubjectID),
		Email:             doc.String(fieldEmail),
	}
	if t, err := time.Parse(time.RFC3339Nano, doc.String(fieldExpiryDate)); err == nil {
		ident.ExpiresAt = t
	}
	return ident
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
