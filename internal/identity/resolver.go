package identity

import (
	"context"
	"log/slog"

	"github.com/sakif/token-keeper/internal/model"
)

// Resolver finds existing identity links and creates missing ones.
// Every directory failure is logged and swallowed.
type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

// NewResolver accepts a nil directory; the resolver then finds nothing.
func NewResolver(dir Directory, logger *slog.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve looks for a link of provider on userID, matching subjectID when it
// is non-empty. If the directory supports subject lookup, a link for the same
// subject owned by another user also counts as found.
func (r *Resolver) Resolve(ctx context.Context, userID, provider, subjectID string) (*model.Identity, bool) {
	if r.dir == nil {
		return nil, false
	}

	identities, err := r.dir.GetIdentities(ctx, userID)
	if err != nil {
		r.logger.Warn("identity lookup failed",
			slog.String("userId", userID),
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	for i := range identities {
		ident := identities[i]
		if ident.Provider != provider {
			continue
		}
		if subjectID != "" && ident.ProviderSubjectID != subjectID {
			continue
		}
		return &ident, true
	}

	if subjectID == "" {
		return nil, false
	}
	lookup, ok := r.dir.(SubjectLookup)
	if !ok {
		return nil, false
	}

	ident, err := lookup.FindBySubject(ctx, provider, subjectID)
	if err != nil {
		r.logger.Warn("identity subject lookup failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if ident == nil {
		return nil, false
	}
	if ident.UserID != userID {
		r.logger.Warn("provider subject already linked to another user",
			slog.String("userId", userID),
			slog.String("linkedUserId", ident.UserID),
			slog.String("provider", provider),
		)
	}
	return ident, true
}

// EnsureLink keeps the identity link for link.ProviderSubjectID current.
//
// LINK LIFECYCLE:
//   - no link for the subject          → LinkIdentity creates one
//   - a link owned by link.UserID      → UpdateIdentity refreshes its tokens
//   - a link owned by another user     → left alone (Resolve already warned)
//
// It reports whether a link was created or updated. Failures are logged and
// read as false; the caller's credential write never depends on them.
func (r *Resolver) EnsureLink(ctx context.Context, link model.IdentityLink) bool {
	if r.dir == nil || link.ProviderSubjectID == "" {
		return false
	}

	existing, found := r.Resolve(ctx, link.UserID, link.Provider, link.ProviderSubjectID)
	if found {
		if existing.UserID != link.UserID {
			return false
		}
		return r.updateLink(ctx, existing.ID, link)
	}

	if err := r.dir.LinkIdentity(ctx, link); err != nil {
		r.logger.Warn("identity link failed",
			slog.String("userId", link.UserID),
			slog.String("provider", link.Provider),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.logger.Info("identity linked",
		slog.String("userId", link.UserID),
		slog.String("provider", link.Provider),
	)
	return true
}

func (r *Resolver) updateLink(ctx context.Context, id string, link model.IdentityLink) bool {
	if err := r.dir.UpdateIdentity(ctx, id, link); err != nil {
		r.logger.Warn("identity update failed",
			slog.String("userId", link.UserID),
			slog.String("provider", link.Provider),
			slog.String("identityId", id),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.logger.Debug("identity updated",
		slog.String("userId", link.UserID),
		slog.String("provider", link.Provider),
		slog.String("identityId", id),
	)
	return true
}
