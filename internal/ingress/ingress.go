// Package ingress turns the inbound encodings a credential upsert can arrive
// in into one model.CredentialPayload.
//
// Accepted inputs:
//
//   - map[string]any (an already decoded body)
//   - string, []byte or json.RawMessage holding a JSON object, a JSON string
//     that itself holds an object, or an object whose "data" field is a
//     JSON-encoded object
//   - Envelope, for callers that hand over the raw transport fields
//   - anything else json.Marshal renders as an object
//
// At most two levels of string-to-object decoding are attempted. Failures are
// logged at debug level and produce an empty payload; Normalize never errors.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/model"
)

// maxStringDecodes bounds how many times a JSON string is decoded again.
const maxStringDecodes = 2

// Envelope mirrors the places a function runtime may put the request
// payload. Body and Payload may be decoded objects or raw strings; Data is
// the runtime-specific fallback.
type Envelope struct {
	Body    any
	Payload any
	Data    any
}

// Normalizer decodes inbound payloads. The zero value is not usable; call New.
type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize decodes raw into a CredentialPayload. Missing or undecodable
// input yields the empty payload, which fails validation downstream.
func (n *Normalizer) Normalize(raw any) model.CredentialPayload {
	var (
		doc gjson.Result
		ok  bool
	)

	switch v := raw.(type) {
	case Envelope:
		doc, ok = n.fromEnvelope(v)
	case *Envelope:
		if v != nil {
			doc, ok = n.fromEnvelope(*v)
		}
	case model.CredentialPayload:
		return trimPayload(v)
	case *model.CredentialPayload:
		if v != nil {
			return trimPayload(*v)
		}
	default:
		doc, ok = n.decode("input", raw)
	}

	if !ok {
		return model.CredentialPayload{}
	}
	return payloadFrom(doc)
}

// fromEnvelope picks the first non-empty source:
// Body object, Payload object, Body string, Data.
func (n *Normalizer) fromEnvelope(e Envelope) (gjson.Result, bool) {
	if isNonEmptyObject(e.Body) {
		return n.decode("body", e.Body)
	}
	if isNonEmptyObject(e.Payload) {
		return n.decode("payload", e.Payload)
	}
	if s, ok := asString(e.Body); ok && strings.TrimSpace(s) != "" {
		return n.decodeString("body", s, 1)
	}
	if e.Data != nil {
		return n.decode("data", e.Data)
	}
	return gjson.Result{}, false
}

func (n *Normalizer) decode(source string, v any) (gjson.Result, bool) {
	if v == nil {
		return gjson.Result{}, false
	}
	if s, ok := asString(v); ok {
		return n.decodeString(source, s, 1)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		n.logDecodeFailure(source, err)
		return gjson.Result{}, false
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		n.logDecodeFailure(source, fmt.Errorf("expected an object, got %s", doc.Type))
		return gjson.Result{}, false
	}
	return doc, true
}

// decodeString parses s as JSON. A JSON string is decoded once more, and an
// object whose "data" field is a string holding an object is replaced by
// that inner object, both only while depth allows it.
func (n *Normalizer) decodeString(source, s string, depth int) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	if !gjson.Valid(s) {
		n.logDecodeFailure(source, fmt.Errorf("invalid JSON at depth %d", depth))
		return gjson.Result{}, false
	}

	doc := gjson.Parse(s)
	switch {
	case doc.IsObject():
		if data := doc.Get("data"); data.Type == gjson.String && depth < maxStringDecodes {
			if inner, ok := n.decodeString(source+".data", data.Str, depth+1); ok {
				return inner, true
			}
		}
		return doc, true
	case doc.Type == gjson.String && depth < maxStringDecodes:
		return n.decodeString(source, doc.Str, depth+1)
	default:
		n.logDecodeFailure(source, fmt.Errorf("expected an object, got %s", doc.Type))
		return gjson.Result{}, false
	}
}

func (n *Normalizer) logDecodeFailure(source string, cause error) {
	n.logger.LogAttrs(context.Background(), slog.LevelDebug, "payload decode failed",
		slog.String("source", source),
		slog.Any("error", apperror.DecodingFailed(source, cause)),
		slog.String("cause", cause.Error()),
	)
}

func payloadFrom(doc gjson.Result) model.CredentialPayload {
	subject := field(doc, "providerSubjectId")
	if subject == "" {
		subject = field(doc, "providerUid")
	}
	return model.CredentialPayload{
		UserID:            field(doc, "userId"),
		Provider:          field(doc, "provider"),
		AccessToken:       field(doc, "accessToken"),
		RefreshToken:      field(doc, "refreshToken"),
		ExpiryDate:        field(doc, "expiryDate"),
		ProviderSubjectID: subject,
		Email:             field(doc, "email"),
	}
}

// field reads a top-level scalar as a trimmed string. Numbers keep their
// literal form so epoch milliseconds survive intact. Objects, arrays and
// null read as "".
func field(doc gjson.Result, key string) string {
	v := doc.Get(key)
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number, gjson.True, gjson.False:
		return strings.TrimSpace(v.Raw)
	default:
		return ""
	}
}

func trimPayload(p model.CredentialPayload) model.CredentialPayload {
	return model.CredentialPayload{
		UserID:            strings.TrimSpace(p.UserID),
		Provider:          strings.TrimSpace(p.Provider),
		AccessToken:       strings.TrimSpace(p.AccessToken),
		RefreshToken:      strings.TrimSpace(p.RefreshToken),
		ExpiryDate:        strings.TrimSpace(p.ExpiryDate),
		ProviderSubjectID: strings.TrimSpace(p.ProviderSubjectID),
		Email:             strings.TrimSpace(p.Email),
	}
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case json.RawMessage:
		return string(s), true
	default:
		return "", false
	}
}

func isNonEmptyObject(v any) bool {
	switch m := v.(type) {
	case map[string]any:
		return len(m) > 0
	case map[string]string:
		return len(m) > 0
	default:
		return false
	}
}
