// Package credential stores one provider credential per (user, provider) in
// a document-store collection.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/model"
	"github.com/sakif/token-keeper/internal/repository"
)

// Document field names in the tokens collection.
const (
	FieldUserID       = "userId"
	FieldProvider     = "provider"
	FieldSubjectID    = "providerSubjectId"
	FieldAccessToken  = "accessToken"
	FieldRefreshToken = "refreshToken"
	FieldExpiryDate   = "expiryDate"
	FieldCreatedAt    = "createdAt"
	FieldUpdatedAt    = "updatedAt"
)

// Store is the credential adapter over a repository.DocumentStore.
//
// DOCUMENT SHAPE:
//
//	{userId, provider, providerSubjectId, accessToken, refreshToken,
//	 expiryDate, createdAt, updatedAt}
//
// Every field is a string; timestamps are RFC 3339 with sub-second
// precision, and an unset value is "" rather than absent.
type Store struct {
	docs       repository.DocumentStore
	collection repository.Collection
	logger     *slog.Logger
	now        func() time.Time
}

// New declares (userId, provider) unique in the collection. Concurrent
// creates for one pair then fail with an error matching apperror.ErrConflict.
func New(ctx context.Context, docs repository.DocumentStore, collection repository.Collection, logger *slog.Logger) (*Store, error) {
	if err := docs.EnsureUnique(ctx, collection, FieldUserID, FieldProvider); err != nil {
		return nil, fmt.Errorf("credential: preparing %s: %w", collection, err)
	}
	return &Store{
		docs:       docs,
		collection: collection,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Find returns the record for the pair or an error matching
// apperror.ErrNotFound. With several matches the oldest wins.
func (s *Store) Find(ctx context.Context, userID, provider string) (*model.CredentialRecord, error) {
	docs, err := s.docs.ListWhere(ctx, s.collection,
		repository.Equal(FieldUserID, userID),
		repository.Equal(FieldProvider, provider),
	)
	if err != nil {
		return nil, storageErr("finding credential", err)
	}

	switch len(docs) {
	case 0:
		return nil, apperror.NotFound("credential", userID+"/"+provider)
	case 1:
	default:
		s.logger.Warn("duplicate credential records",
			slog.String("userId", userID),
			slog.String("provider", provider),
			slog.Int("count", len(docs)),
			slog.String("using", docs[0].ID),
		)
	}

	return toRecord(docs[0]), nil
}

// Create stores a new record. Unset optional fields are written as "".
func (s *Store) Create(ctx context.Context, rec model.CredentialRecord) (*model.CredentialRecord, error) {
	now := s.now().UTC()

	doc, err := s.docs.Insert(ctx, s.collection, repository.Document{
		Fields: map[string]any{
			FieldUserID:       rec.UserID,
			FieldProvider:     rec.Provider,
			FieldSubjectID:    rec.ProviderSubjectID,
			FieldAccessToken:  rec.AccessToken,
			FieldRefreshToken: rec.RefreshToken,
			FieldExpiryDate:   formatTime(rec.ExpiresAt),
			FieldCreatedAt:    formatTime(now),
			FieldUpdatedAt:    formatTime(now),
		},
	})
	if err != nil {
		return nil, storageErr("creating credential", err)
	}

	return toRecord(doc), nil
}

// Update applies patch to the record. AccessToken is always written; the
// other fields only when non-empty.
//
// WHY KEEP STORED VALUES ON EMPTY?
// Providers only return a refresh token on the first consent (or when they
// rotate it). A later refresh response without one must not wipe the stored
// token, or the user would have to consent again. The same goes for a caller
// that knows the new access token but not its subject or expiry.
func (s *Store) Update(ctx context.Context, recordID string, patch model.CredentialPatch) (*model.CredentialRecord, error) {
	fields := map[string]any{
		FieldAccessToken: patch.AccessToken,
		FieldUpdatedAt:   formatTime(s.now().UTC()),
	}
	if patch.RefreshToken != "" {
		fields[FieldRefreshToken] = patch.RefreshToken
	}
	if patch.ProviderSubjectID != "" {
		fields[FieldSubjectID] = patch.ProviderSubjectID
	}
	if !patch.ExpiresAt.IsZero() {
		fields[FieldExpiryDate] = formatTime(patch.ExpiresAt)
	}

	doc, err := s.docs.Patch(ctx, s.collection, recordID, fields)
	if err != nil {
		return nil, storageErr("updating credential", err)
	}

	return toRecord(doc), nil
}

// storageErr keeps application errors (not found, conflict) as they are and
// wraps anything else as a storage failure.
func storageErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return fmt.Errorf("credential: %s: %w", op, err)
	}
	return apperror.StorageFailed(op, err)
}

func toRecord(doc repository.Document) *model.CredentialRecord {
	rec := &model.CredentialRecord{
		ID:                doc.ID,
		UserID:            doc.String(FieldUserID),
		Provider:          doc.String(FieldProvider),
		ProviderSubjectID: doc.String(FieldSubjectID),
		AccessToken:       doc.String(FieldAccessToken),
		RefreshToken:      doc.String(FieldRefreshToken),
		ExpiresAt:         parseTime(doc.String(FieldExpiryDate)),
		CreatedAt:         parseTime(doc.String(FieldCreatedAt)),
		UpdatedAt:         parseTime(doc.String(FieldUpdatedAt)),
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = doc.CreatedAt
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = doc.UpdatedAt
	}
	return rec
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
