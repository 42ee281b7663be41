package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/credential"
	"github.com/sakif/token-keeper/internal/identity"
	"github.com/sakif/token-keeper/internal/ingress"
	"github.com/sakif/token-keeper/internal/model"
	"github.com/sakif/token-keeper/internal/repository"
	"github.com/sakif/token-keeper/internal/repository/sqlite"
)

var (
	tokensCollection     = repository.Collection{Database: "main", ID: "tokens"}
	identitiesCollection = repository.Collection{Database: "main", ID: "identities"}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stack is the real engine over an in-memory SQLite store.
type stack struct {
	db         *sqlite.DB
	creds      *credential.Store
	dir        *identity.DocumentDirectory
	reconciler *Reconciler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	db, err := sqlite.New(":memory:", "test-project")
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	creds, err := credential.New(ctx, db, tokensCollection, logger)
	if err != nil {
		t.Fatalf("credential.New() error = %v", err)
	}
	dir, err := identity.NewDocumentDirectory(ctx, db, identitiesCollection)
	if err != nil {
		t.Fatalf("identity.NewDocumentDirectory() error = %v", err)
	}

	return &stack{
		db:         db,
		creds:      creds,
		dir:        dir,
		reconciler: NewReconciler(creds, identity.NewResolver(dir, logger), ingress.New(logger), logger),
	}
}

// tokenDocs returns the raw stored documents for a user.
func (s *stack) tokenDocs(t *testing.T, userID string) []repository.Document {
	t.Helper()
	docs, err := s.db.ListWhere(context.Background(), tokensCollection, repository.Equal("userId", userID))
	if err != nil {
		t.Fatalf("ListWhere() error = %v", err)
	}
	return docs
}

// =========================================================================
// FAKES
// =========================================================================

// fakeCredentialStore is an in-memory CredentialStore that counts writes and
// can be told to fail.
type fakeCredentialStore struct {
	records map[string]*model.CredentialRecord // keyed by userId/provider
	creates int
	updates int

	findErr   error
	createErr error
	updateErr error
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{records: map[string]*model.CredentialRecord{}}
}

func (f *fakeCredentialStore) Find(_ context.Context, userID, provider string) (*model.CredentialRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	rec, ok := f.records[userID+"/"+provider]
	if !ok {
		return nil, apperror.NotFound("credential", userID+"/"+provider)
	}
	out := *rec
	return &out, nil
}

func (f *fakeCredentialStore) Create(_ context.Context, rec model.CredentialRecord) (*model.CredentialRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.creates++
	rec.ID = "rec-" + rec.UserID + "-" + rec.Provider
	f.records[rec.UserID+"/"+rec.Provider] = &rec
	out := rec
	return &out, nil
}

func (f *fakeCredentialStore) Update(_ context.Context, id string, patch model.CredentialPatch) (*model.CredentialRecord, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for _, rec := range f.records {
		if rec.ID != id {
			continue
		}
		f.updates++
		rec.AccessToken = patch.AccessToken
		if patch.RefreshToken != "" {
			rec.RefreshToken = patch.RefreshToken
		}
		if !patch.ExpiresAt.IsZero() {
			rec.ExpiresAt = patch.ExpiresAt
		}
		out := *rec
		return &out, nil
	}
	return nil, apperror.NotFound("credential", id)
}

func (f *fakeCredentialStore) writes() int {
	return f.creates + f.updates
}

// failingDirectory is an identity directory whose writes always fail.
type failingDirectory struct {
	links   int
	updates int
}

func (d *failingDirectory) GetIdentities(context.Context, string) ([]model.Identity, error) {
	return nil, nil
}

func (d *failingDirectory) LinkIdentity(context.Context, model.IdentityLink) error {
	d.links++
	return errors.New("directory: permission denied")
}

func (d *failingDirectory) UpdateIdentity(context.Context, string, model.IdentityLink) error {
	d.updates++
	return errors.New("directory: permission denied")
}

// panickingNormalizer simulates a bug in a collaborator.
type panickingNormalizer struct{}

func (panickingNormalizer) Normalize(any) model.CredentialPayload {
	panic("boom")
}
