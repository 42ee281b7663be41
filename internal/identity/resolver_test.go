package identity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sakif/token-keeper/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Resolve ---

func TestResolve_NilDirectory(t *testing.T) {
	r := NewResolver(nil, testLogger())

	ident, found := r.Resolve(context.Background(), "u1", "google", "sub-1")
	assert.False(t, found)
	assert.Nil(t, ident)
}

func TestResolve_MatchesProviderAndSubject(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)
	ctx := context.Background()

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return([]model.Identity{
		{ID: "i1", UserID: "u1", Provider: "github", ProviderSubjectID: "sub-1"},
		{ID: "i2", UserID: "u1", Provider: "google", ProviderSubjectID: "sub-other"},
		{ID: "i3", UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1"},
	}, nil)

	r := NewResolver(dir, testLogger())
	ident, found := r.Resolve(ctx, "u1", "google", "sub-1")

	require.True(t, found)
	assert.Equal(t, "i3", ident.ID)
}

func TestResolve_NoSubjectMatchesAnyOfProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return([]model.Identity{
		{ID: "i1", UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1"},
	}, nil)

	ident, found := NewResolver(dir, testLogger()).Resolve(context.Background(), "u1", "google", "")

	require.True(t, found)
	assert.Equal(t, "i1", ident.ID)
}

func TestResolve_DirectoryFailureIsNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return(nil, errors.New("directory down"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	_, found := NewResolver(dir, logger).Resolve(context.Background(), "u1", "google", "sub-1")

	assert.False(t, found)
	assert.Contains(t, buf.String(), "identity lookup failed")
}

func TestResolve_SubjectLinkedToOtherUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockSubjectDirectory(ctrl)

	gomock.InOrder(
		dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return(nil, nil),
		dir.EXPECT().FindBySubject(gomock.Any(), "google", "sub-1").
			Return(&model.Identity{ID: "i9", UserID: "u2", Provider: "google", ProviderSubjectID: "sub-1"}, nil),
	)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ident, found := NewResolver(dir, logger).Resolve(context.Background(), "u1", "google", "sub-1")

	require.True(t, found)
	assert.Equal(t, "u2", ident.UserID)
	assert.True(t, strings.Contains(buf.String(), "level=WARN"), "expected a warning, got %q", buf.String())
}

func TestResolve_SubjectLookupFailureIsNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockSubjectDirectory(ctrl)

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return(nil, nil)
	dir.EXPECT().FindBySubject(gomock.Any(), "google", "sub-1").Return(nil, errors.New("timeout"))

	_, found := NewResolver(dir, testLogger()).Resolve(context.Background(), "u1", "google", "sub-1")
	assert.False(t, found)
}

// --- EnsureLink ---

func TestEnsureLink_CreatesWhenMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockSubjectDirectory(ctrl)
	link := model.IdentityLink{UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1", AccessToken: "a1"}

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return(nil, nil)
	dir.EXPECT().FindBySubject(gomock.Any(), "google", "sub-1").Return(nil, nil)
	dir.EXPECT().LinkIdentity(gomock.Any(), link).Return(nil)

	assert.True(t, NewResolver(dir, testLogger()).EnsureLink(context.Background(), link))
}

func TestEnsureLink_UpdatesExisting(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)
	link := model.IdentityLink{UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1", AccessToken: "a2"}

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return([]model.Identity{
		{ID: "i1", UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1"},
	}, nil)
	dir.EXPECT().UpdateIdentity(gomock.Any(), "i1", link).Return(nil)
	dir.EXPECT().LinkIdentity(gomock.Any(), gomock.Any()).Times(0)

	assert.True(t, NewResolver(dir, testLogger()).EnsureLink(context.Background(), link))
}

func TestEnsureLink_LeavesOtherUsersLink(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockSubjectDirectory(ctrl)

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return(nil, nil)
	dir.EXPECT().FindBySubject(gomock.Any(), "google", "sub-1").
		Return(&model.Identity{ID: "i9", UserID: "u2", Provider: "google", ProviderSubjectID: "sub-1"}, nil)
	dir.EXPECT().UpdateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	dir.EXPECT().LinkIdentity(gomock.Any(), gomock.Any()).Times(0)

	linked := NewResolver(dir, testLogger()).EnsureLink(context.Background(), model.IdentityLink{
		UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1", AccessToken: "a1",
	})
	assert.False(t, linked)
}

func TestEnsureLink_SwallowsUpdateFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return([]model.Identity{
		{ID: "i1", UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1"},
	}, nil)
	dir.EXPECT().UpdateIdentity(gomock.Any(), "i1", gomock.Any()).Return(errors.New("permission denied"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	linked := NewResolver(dir, logger).EnsureLink(context.Background(), model.IdentityLink{
		UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1", AccessToken: "a2",
	})

	assert.False(t, linked)
	assert.Contains(t, buf.String(), "identity update failed")
}

func TestEnsureLink_NeedsSubject(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)
	// No calls expected: the controller fails the test on any.

	linked := NewResolver(dir, testLogger()).EnsureLink(context.Background(), model.IdentityLink{
		UserID: "u1", Provider: "google",
	})
	assert.False(t, linked)
}

func TestEnsureLink_SwallowsLinkFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := NewMockDirectory(ctrl)

	dir.EXPECT().GetIdentities(gomock.Any(), "u1").Return(nil, nil)
	dir.EXPECT().LinkIdentity(gomock.Any(), gomock.Any()).Return(errors.New("permission denied"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	linked := NewResolver(dir, logger).EnsureLink(context.Background(), model.IdentityLink{
		UserID: "u1", Provider: "google", ProviderSubjectID: "sub-1",
	})

	assert.False(t, linked)
	assert.Contains(t, buf.String(), "identity link failed")
}
