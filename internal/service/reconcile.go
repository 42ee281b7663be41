// Package service contains the token lifecycle logic.
//
// THE RECONCILIATION ENGINE:
// Reconciler takes one credential payload and performs an idempotent
// create-or-update of the user's stored credential:
//
//	Validating → Resolving → Creating | Updating → Done
//	     └────→ Rejected
//
// Identity linking (create, or refresh the tokens of an existing link)
// happens during Resolving and is best-effort. The credential write is the
// only thing that decides success.
//
// OAuthService drives the provider side (login redirect, callback, refresh)
// and hands its results to the Reconciler.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/model"
)

// CredentialStore is the credential adapter the engine writes through.
type CredentialStore interface {
	Find(ctx context.Context, userID, provider string) (*model.CredentialRecord, error)
	Create(ctx context.Context, rec model.CredentialRecord) (*model.CredentialRecord, error)
	Update(ctx context.Context, recordID string, patch model.CredentialPatch) (*model.CredentialRecord, error)
}

// IdentityResolver finds or creates identity links. It never fails.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID, provider, subjectID string) (*model.Identity, bool)
	EnsureLink(ctx context.Context, link model.IdentityLink) bool
}

// PayloadNormalizer turns raw inbound data into a CredentialPayload.
type PayloadNormalizer interface {
	Normalize(raw any) model.CredentialPayload
}

// State is a step of one reconciliation.
type State int

const (
	StateValidating State = iota
	StateResolving
	StateCreating
	StateUpdating
	StateDone
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateResolving:
		return "resolving"
	case StateCreating:
		return "creating"
	case StateUpdating:
		return "updating"
	case StateDone:
		return "done"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Response messages. Validation failures carry their own message; every
// other failure is reported as MsgInternalError and the detail goes to the log.
const (
	MsgCreated       = "Token created successfully"
	MsgUpdated       = "Token updated successfully"
	MsgMissingFields = "Missing required fields: userId, provider, and accessToken are required"
	MsgInternalError = "An internal error occurred"
)

// Status classifies an Upsert outcome for the transport layer.
type Status string

const (
	StatusOK            Status = "ok"
	StatusBadRequest    Status = "bad_request"
	StatusInternalError Status = "internal_error"
)

// ReconcileResult is the outcome of a successful reconciliation.
type ReconcileResult struct {
	RecordID string
	Created  bool
	Record   *model.CredentialRecord
	// State is StateDone on success and the state that failed otherwise.
	State State
}

// Response is the structured result of Upsert. It is always returned,
// never an error.
type Response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	RecordID string `json:"recordId,omitempty"`
	Created  bool   `json:"created"`
	Status   Status `json:"status"`
}

// Reconciler is the token reconciliation engine.
//
// DEPENDENCIES:
//   - store      CredentialStore   → the authoritative (userId, provider) record
//   - identities IdentityResolver  → advisory identity links; may be nil
//   - normalizer PayloadNormalizer → raw inbound data → CredentialPayload
//
// All three are interfaces, so tests swap in fakes without a database and the
// engine never learns which document store sits underneath.
//
// WHY FIND-THEN-WRITE AND NOT A SINGLE UPSERT?
// The document store has no native upsert, and an update must merge with the
// stored record (an empty refresh token keeps the old one). Two requests
// racing to create the same pair are caught by the store's unique constraint;
// the loser gets a conflict instead of a second record.
type Reconciler struct {
	store      CredentialStore
	identities IdentityResolver
	normalizer PayloadNormalizer
	logger     *slog.Logger
}

// NewReconciler wires the engine. identities may be nil, in which case no
// identity resolution happens.
func NewReconciler(store CredentialStore, identities IdentityResolver, normalizer PayloadNormalizer, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		identities: identities,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Upsert normalizes raw and reconciles it. Failures are reported in the
// Response; nothing escapes as an error or a panic.
func (r *Reconciler) Upsert(ctx context.Context, raw any) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic during upsert", slog.Any("panic", rec))
			resp = Response{Success: false, Message: MsgInternalError, Status: StatusInternalError}
		}
	}()

	payload := r.normalizer.Normalize(raw)

	res, err := r.Reconcile(ctx, payload)
	if err != nil {
		return r.failureResponse(payload, err)
	}

	msg := MsgUpdated
	if res.Created {
		msg = MsgCreated
	}
	return Response{
		Success:  true,
		Message:  msg,
		RecordID: res.RecordID,
		Created:  res.Created,
		Status:   StatusOK,
	}
}

// failureResponse turns a Reconcile error into a Response.
//
// WHAT REACHES THE CALLER:
// Validation messages are written for the caller ("Missing required fields
// ..."), so they are returned as they are. Storage and provider errors carry
// driver text, file paths or SQL; the caller gets MsgInternalError and the
// full error is logged here.
func (r *Reconciler) failureResponse(p model.CredentialPayload, err error) Response {
	if errors.Is(err, apperror.ErrValidation) {
		msg := err.Error()
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		return Response{Success: false, Message: msg, Status: StatusBadRequest}
	}

	r.logger.Error("upsert failed",
		slog.String("userId", p.UserID),
		slog.String("provider", p.Provider),
		slog.String("error", err.Error()),
	)
	return Response{Success: false, Message: MsgInternalError, Status: StatusInternalError}
}

// Reconcile runs one payload through the state machine.
func (r *Reconciler) Reconcile(ctx context.Context, p model.CredentialPayload) (*ReconcileResult, error) {
	state := StateValidating

	expiresAt, err := validate(p)
	if err != nil {
		r.transition(p, state, StateRejected)
		return nil, err
	}

	r.transition(p, state, StateResolving)
	state = StateResolving

	// Without a subject id there is nothing to link, but a known link can
	// supply one.
	if r.identities != nil && p.ProviderSubjectID == "" {
		if ident, ok := r.identities.Resolve(ctx, p.UserID, p.Provider, ""); ok && ident.UserID == p.UserID {
			p.ProviderSubjectID = ident.ProviderSubjectID
		}
	} else if r.identities != nil {
		r.identities.EnsureLink(ctx, model.IdentityLink{
			UserID:            p.UserID,
			Provider:          p.Provider,
			ProviderSubjectID: p.ProviderSubjectID,
			AccessToken:       p.AccessToken,
			RefreshToken:      p.RefreshToken,
			ExpiresAt:         expiresAt,
			Email:             p.Email,
		})
	}

	existing, err := r.store.Find(ctx, p.UserID, p.Provider)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		r.logger.Error("credential lookup failed",
			slog.String("userId", p.UserID),
			slog.String("provider", p.Provider),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if existing == nil {
		r.transition(p, state, StateCreating)
		rec, err := r.store.Create(ctx, model.CredentialRecord{
			UserID:            p.UserID,
			Provider:          p.Provider,
			ProviderSubjectID: p.ProviderSubjectID,
			AccessToken:       p.AccessToken,
			RefreshToken:      p.RefreshToken,
			ExpiresAt:         expiresAt,
		})
		if err != nil {
			r.logger.Error("credential create failed",
				slog.String("userId", p.UserID),
				slog.String("provider", p.Provider),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		return r.done(p, StateCreating, rec, true), nil
	}

	r.transition(p, state, StateUpdating)
	rec, err := r.store.Update(ctx, existing.ID, model.CredentialPatch{
		AccessToken:       p.AccessToken,
		RefreshToken:      p.RefreshToken,
		ProviderSubjectID: p.ProviderSubjectID,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		r.logger.Error("credential update failed",
			slog.String("recordId", existing.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return r.done(p, StateUpdating, rec, false), nil
}

func (r *Reconciler) done(p model.CredentialPayload, from State, rec *model.CredentialRecord, created bool) *ReconcileResult {
	r.transition(p, from, StateDone)
	r.logger.Info("credential reconciled",
		slog.String("recordId", rec.ID),
		slog.String("userId", p.UserID),
		slog.String("provider", p.Provider),
		slog.Bool("created", created),
	)
	return &ReconcileResult{
		RecordID: rec.ID,
		Created:  created,
		Record:   rec,
		State:    StateDone,
	}
}

func (r *Reconciler) transition(p model.CredentialPayload, from, to State) {
	r.logger.Debug("reconcile state",
		slog.String("userId", p.UserID),
		slog.String("provider", p.Provider),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

// validate checks the required fields and parses the expiry.
func validate(p model.CredentialPayload) (time.Time, error) {
	if p.UserID == "" || p.Provider == "" || p.AccessToken == "" {
		field := "userId"
		switch {
		case p.UserID == "":
		case p.Provider == "":
			field = "provider"
		default:
			field = "accessToken"
		}
		return time.Time{}, apperror.ValidationFailed(field, MsgMissingFields)
	}

	expiresAt, err := ParseExpiry(p.ExpiryDate)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed("expiryDate", err.Error())
	}
	return expiresAt, nil
}

// Epoch values at or above this are taken as milliseconds. 1e11 seconds is
// in the year 5138; 1e11 milliseconds is in 1973.
const epochMillisThreshold = 100_000_000_000

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseExpiry accepts RFC 3339 / ISO-8601 timestamps and epoch seconds or
// milliseconds. An empty string is the zero time. Values without a zone are
// read as UTC.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, fmt.Errorf("expiryDate %q is not a valid timestamp", s)
		}
		if n >= epochMillisThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("expiryDate %q is not an ISO-8601 timestamp or epoch value", s)
}
