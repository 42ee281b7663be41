package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rs/xid"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/token-keeper/internal/apperror"
	"github.com/sakif/token-keeper/internal/repository"
)

// compile-time check that *DB implements repository.DocumentStore
var _ repository.DocumentStore = (*DB)(nil)

// ListWhere returns every document in the collection whose fields equal all
// filters, oldest first.
//
// Each filter becomes `json_extract(data, '$.<field>') = ?`. Only the value
// is bound as a parameter; the field name is validated as an identifier
// before it is spliced into the JSON path.
func (db *DB) ListWhere(ctx context.Context, c repository.Collection, filters ...repository.Filter) ([]repository.Document, error) {
	query := `SELECT id, data, created_at, updated_at FROM documents
		WHERE project = ? AND collection = ?`
	args := []any{db.project, c.String()}

	for _, f := range filters {
		if err := repository.ValidateField(f.Field); err != nil {
			return nil, err
		}
		query += fmt.Sprintf(` AND json_extract(data, '$.%s') = ?`, f.Field)
		args = append(args, f.Value)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s: %w", c, err)
	}
	defer rows.Close()

	docs := []repository.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s: %w", c, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", c, err)
	}

	return docs, nil
}

// Insert stores a new document. An empty doc.ID gets a fresh xid.
// A unique index or primary key violation is reported as apperror.Conflict.
func (db *DB) Insert(ctx context.Context, c repository.Collection, doc repository.Document) (repository.Document, error) {
	if doc.ID == "" {
		doc.ID = xid.New().String()
	}
	doc.Fields = repository.CloneFields(doc.Fields)

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return repository.Document{}, fmt.Errorf("sqlite: encoding document: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (project, collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		db.project,
		c.String(),
		doc.ID,
		string(data),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.Document{}, apperror.Conflict(c.String(), doc.ID)
		}
		return repository.Document{}, fmt.Errorf("sqlite: inserting into %s: %w", c, err)
	}

	return doc, nil
}

// Patch merges fields into the stored document inside one transaction:
// read the current JSON, overlay the patch, write it back.
func (db *DB) Patch(ctx context.Context, c repository.Collection, id string, fields map[string]any) (repository.Document, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return repository.Document{}, fmt.Errorf("sqlite: beginning patch: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	row := tx.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM documents
		 WHERE project = ? AND collection = ? AND id = ?`,
		db.project, c.String(), id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Document{}, apperror.NotFound(c.String(), id)
		}
		return repository.Document{}, fmt.Errorf("sqlite: loading %s/%s: %w", c, id, err)
	}

	for k, v := range fields {
		doc.Fields[k] = v
	}
	doc.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return repository.Document{}, fmt.Errorf("sqlite: encoding document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ?
		 WHERE project = ? AND collection = ? AND id = ?`,
		string(data), doc.UpdatedAt, db.project, c.String(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.Document{}, apperror.Conflict(c.String(), id)
		}
		return repository.Document{}, fmt.Errorf("sqlite: updating %s/%s: %w", c, id, err)
	}

	if err := tx.Commit(); err != nil {
		return repository.Document{}, fmt.Errorf("sqlite: committing patch: %w", err)
	}

	return doc, nil
}

// EnsureUnique creates a partial unique index over the JSON fields of one
// collection, e.g. for ("userId", "provider"):
//
//	CREATE UNIQUE INDEX IF NOT EXISTS uq_<hash> ON documents(
//	    project, collection,
//	    json_extract(data, '$.userId'), json_extract(data, '$.provider'))
//	WHERE collection = 'db/tokens'
//
// SQLite forbids bound parameters in index definitions, so the collection
// name is embedded as an escaped literal.
func (db *DB) EnsureUnique(ctx context.Context, c repository.Collection, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("sqlite: EnsureUnique needs at least one field")
	}

	exprs := []string{"project", "collection"}
	for _, f := range fields {
		if err := repository.ValidateField(f); err != nil {
			return err
		}
		exprs = append(exprs, fmt.Sprintf("json_extract(data, '$.%s')", f))
	}

	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON documents(%s) WHERE collection = %s`,
		indexName(c, fields),
		strings.Join(exprs, ", "),
		quoteLiteral(c.String()),
	)
	if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: %s already holds duplicate %v: %w", c, fields, apperror.ErrConflict)
		}
		return fmt.Errorf("sqlite: creating unique index on %s: %w", c, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (repository.Document, error) {
	var (
		doc  repository.Document
		data string
	)
	if err := s.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return repository.Document{}, err
	}
	doc.Fields = map[string]any{}
	if err := json.Unmarshal([]byte(data), &doc.Fields); err != nil {
		return repository.Document{}, fmt.Errorf("decoding document %s: %w", doc.ID, err)
	}
	return doc, nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. The message check covers connections that only report the
// primary SQLITE_CONSTRAINT code.
func isUniqueViolation(err error) bool {
	var sqlErr *moderncsqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqlErr.Error(), "UNIQUE constraint failed")
}

func indexName(c repository.Collection, fields []string) string {
	h := fnv.New64a()
	h.Write([]byte(c.String()))
	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return fmt.Sprintf("uq_documents_%x", h.Sum64())
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
