// Package bolt implements repository.DocumentStore on an embedded bbolt file.
//
// Layout:
//
//	<project>:<db>/<collection>                  id → JSON document
//	<project>:<db>/<collection>:uq:<f1,f2>       unique key → id
//	<project>:__constraints                      collection → JSON [][]string
//
// bbolt serialises write transactions, so the uniqueness check and the write
// it guards always happen atomically.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/xid"
	bolt "go.etcd.io/bbolt"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/repository"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var _ repository.DocumentStore = (*Store)(nil)

// storedDoc is the JSON value kept under each id.
type storedDoc struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (s storedDoc) document() repository.Document {
	return repository.Document{
		ID:        s.ID,
		Fields:    repository.CloneFields(s.Fields),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Store wraps a bbolt database.
type Store struct {
	db      *bolt.DB
	project string
}

// Open opens the database at path, creating it and its directory if needed.
func Open(path, project string) (*Store, error) {
	if project == "" {
		return nil, fmt.Errorf("bolt: project id is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("bolt: creating directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: opening %s: %w", path, err)
	}

	s := &Store{db: db, project: project}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.constraintsBucket())
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: initializing: %w", err)
	}

	return s, nil
}

// Ping checks that the database file is still open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) docsBucket(c repository.Collection) []byte {
	return []byte(s.project + ":" + c.String())
}

func (s *Store) uniqueBucket(c repository.Collection, fields []string) []byte {
	return []byte(s.project + ":" + c.String() + ":uq:" + strings.Join(fields, ","))
}

func (s *Store) constraintsBucket() []byte {
	return []byte(s.project + ":__constraints")
}

// ListWhere scans the collection and keeps documents matching every filter.
func (s *Store) ListWhere(ctx context.Context, c repository.Collection, filters ...repository.Filter) ([]repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range filters {
		if err := repository.ValidateField(f.Field); err != nil {
			return nil, err
		}
	}

	docs := []repository.Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.docsBucket(c))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var sd storedDoc
			if err := json.Unmarshal(v, &sd); err != nil {
				return err
			}
			doc := sd.document()
			for _, f := range filters {
				if _, ok := doc.Fields[f.Field]; !ok || doc.String(f.Field) != f.Value {
					return nil
				}
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: listing %s: %w", c, err)
	}

	slices.SortFunc(docs, func(a, b repository.Document) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// Insert stores a new document and claims its unique keys.
func (s *Store) Insert(ctx context.Context, c repository.Collection, doc repository.Document) (repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return repository.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = xid.New().String()
	}
	now := time.Now().UTC()
	sd := storedDoc{
		ID:        doc.ID,
		Fields:    repository.CloneFields(doc.Fields),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.docsBucket(c))
		if err != nil {
			return err
		}
		if b.Get([]byte(sd.ID)) != nil {
			return apperror.Conflict(c.String(), sd.ID)
		}

		constraints, err := s.loadConstraints(tx, c)
		if err != nil {
			return err
		}
		for _, fields := range constraints {
			if err := s.claim(tx, c, fields, sd); err != nil {
				return err
			}
		}

		return putDoc(b, sd)
	})
	if err != nil {
		return repository.Document{}, wrapErr(err, "inserting into "+c.String())
	}

	return sd.document(), nil
}

// Patch merges fields into an existing document, moving any unique keys
// whose values changed.
func (s *Store) Patch(ctx context.Context, c repository.Collection, id string, fields map[string]any) (repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return repository.Document{}, err
	}

	var out storedDoc
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.docsBucket(c))
		if b == nil {
			return apperror.NotFound(c.String(), id)
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return apperror.NotFound(c.String(), id)
		}

		var before storedDoc
		if err := json.Unmarshal(raw, &before); err != nil {
			return err
		}

		after := before
		after.Fields = repository.CloneFields(before.Fields)
		for k, v := range fields {
			after.Fields[k] = v
		}
		after.UpdatedAt = time.Now().UTC()

		constraints, err := s.loadConstraints(tx, c)
		if err != nil {
			return err
		}
		for _, f := range constraints {
			oldKey, oldOK := uniqueKey(f, before.Fields)
			newKey, newOK := uniqueKey(f, after.Fields)
			if oldOK == newOK && oldKey == newKey {
				continue
			}
			if err := s.claim(tx, c, f, after); err != nil {
				return err
			}
			if idx := tx.Bucket(s.uniqueBucket(c, f)); oldOK && idx != nil {
				if err := idx.Delete([]byte(oldKey)); err != nil {
					return err
				}
			}
		}

		out = after
		return putDoc(b, after)
	})
	if err != nil {
		return repository.Document{}, wrapErr(err, "patching "+c.String()+"/"+id)
	}

	return out.document(), nil
}

// EnsureUnique records the constraint and indexes existing documents.
// Existing duplicates fail with an error matching apperror.ErrConflict.
func (s *Store) EnsureUnique(ctx context.Context, c repository.Collection, fields ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("bolt: EnsureUnique needs at least one field")
	}
	for _, f := range fields {
		if err := repository.ValidateField(f); err != nil {
			return err
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		constraints, err := s.loadConstraints(tx, c)
		if err != nil {
			return err
		}
		for _, existing := range constraints {
			if slices.Equal(existing, fields) {
				return nil
			}
		}

		if docs := tx.Bucket(s.docsBucket(c)); docs != nil {
			err := docs.ForEach(func(_, v []byte) error {
				var sd storedDoc
				if err := json.Unmarshal(v, &sd); err != nil {
					return err
				}
				return s.claim(tx, c, fields, sd)
			})
			if err != nil {
				return err
			}
		}

		constraints = append(constraints, slices.Clone(fields))
		raw, err := json.Marshal(constraints)
		if err != nil {
			return err
		}
		return tx.Bucket(s.constraintsBucket()).Put([]byte(c.String()), raw)
	})
	if err != nil {
		return wrapErr(err, "ensuring unique "+c.String())
	}
	return nil
}

func (s *Store) loadConstraints(tx *bolt.Tx, c repository.Collection) ([][]string, error) {
	raw := tx.Bucket(s.constraintsBucket()).Get([]byte(c.String()))
	if raw == nil {
		return nil, nil
	}
	var constraints [][]string
	if err := json.Unmarshal(raw, &constraints); err != nil {
		return nil, fmt.Errorf("decoding constraints: %w", err)
	}
	return constraints, nil
}

// claim writes the unique key for sd, failing if another document owns it.
// Documents missing any of the fields are not indexed, like SQL NULLs.
func (s *Store) claim(tx *bolt.Tx, c repository.Collection, fields []string, sd storedDoc) error {
	key, ok := uniqueKey(fields, sd.Fields)
	if !ok {
		return nil
	}
	idx, err := tx.CreateBucketIfNotExists(s.uniqueBucket(c, fields))
	if err != nil {
		return err
	}
	if owner := idx.Get([]byte(key)); owner != nil && string(owner) != sd.ID {
		return apperror.Conflict(c.String(), sd.ID)
	}
	return idx.Put([]byte(key), []byte(sd.ID))
}

func uniqueKey(fields []string, values map[string]any) (string, bool) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := values[f]
		if !ok || v == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "\x00"), true
}

func putDoc(b *bolt.Bucket, sd storedDoc) error {
	raw, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return b.Put([]byte(sd.ID), raw)
}

// wrapErr leaves application errors untouched so errors.Is still matches
// ErrConflict / ErrNotFound at the top level.
func wrapErr(err error, op string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("bolt: %s: %w", op, err)
}
