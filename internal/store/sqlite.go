package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/oklog/ulid/v2"

	"github.com/zjrosen/mdata/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a Store backed by a single documents table.
// Each resource URL is a namespace; documents are stored as JSON text.
type SQLite struct {
	db    *sql.DB
	path  string
	keyID string
}

// Ensure SQLite implements Store.
var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and runs migrations.
// The parent directory is created with 0700 permissions.
func OpenSQLite(path, keyID string) (*SQLite, error) {
	if keyID == "" {
		keyID = DefaultKeyID
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	log.Debug(log.CatDB, "Opening store database", "path", path)
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		log.ErrorErr(log.CatDB, "Failed to open store database", err, "path", path)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		log.ErrorErr(log.CatDB, "Failed to ping store database", err, "path", path)
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info(log.CatDB, "Connected to store database", "path", path)
	return &SQLite{db: db, path: path, keyID: keyID}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	// m.Close would also close db through the driver, so only the source is released.
	defer func() { _ = src.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns one document (map params), a list (slice params) or every document (nil params).
func (s *SQLite) Get(ctx context.Context, url string, params any, opts *Options) (any, error) {
	ids, all, err := identityParams(params, s.keyID)
	if err != nil {
		return nil, err
	}

	if _, single := params.(map[string]any); single {
		var body string
		err := s.db.QueryRowContext(ctx,
			`SELECT body FROM documents WHERE resource = ? AND id = ?`, url, ids[0],
		).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get document: %w", err)
		}
		return decodeBody(body)
	}

	var rows *sql.Rows
	if all {
		rows, err = s.db.QueryContext(ctx,
			`SELECT body FROM documents WHERE resource = ? ORDER BY created_at, rowid`, url)
	} else {
		if len(ids) == 0 {
			return []any{}, nil
		}
		placeholders := make([]string, len(ids))
		args := make([]any, 0, len(ids)+1)
		args = append(args, url)
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id)
		}
		//nolint:gosec // G202: placeholders are literal "?" strings, values passed as args
		query := `SELECT body FROM documents WHERE resource = ? AND id IN (` +
			strings.Join(placeholders, ",") + `) ORDER BY created_at, rowid`
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		log.ErrorErr(log.CatDB, "Document list query failed", err, "url", url)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []any{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Post inserts body, assigning a ULID identity when it has none.
func (s *SQLite) Post(ctx context.Context, url string, body map[string]any, opts *Options) (any, error) {
	doc := CloneDocument(body)
	if doc == nil {
		doc = make(map[string]any)
	}
	k, ok := Key(doc[s.keyID])
	if !ok {
		k = ulid.Make().String()
		doc[s.keyID] = k
	}
	if err := s.upsert(ctx, url, k, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Put replaces the document addressed by body's identity.
func (s *SQLite) Put(ctx context.Context, url string, body map[string]any, opts *Options) (any, error) {
	k, ok := Key(body[s.keyID])
	if !ok {
		return nil, ErrMissingIdentity
	}
	doc := CloneDocument(body)
	if err := s.upsert(ctx, url, k, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Destroy deletes the addressed documents; deleting nothing is ErrNotFound.
func (s *SQLite) Destroy(ctx context.Context, url string, params any, opts *Options) error {
	ids, all, err := identityParams(params, s.keyID)
	if err != nil {
		return err
	}

	if all {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE resource = ?`, url); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		return nil
	}

	var affected int64
	for _, id := range ids {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM documents WHERE resource = ? AND id = ?`, url, id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		affected += n
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) upsert(ctx context.Context, url, id string, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (resource, id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (resource, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		url, id, string(body), now, now,
	)
	if err != nil {
		log.ErrorErr(log.CatDB, "Document upsert failed", err, "url", url, "id", id)
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func decodeBody(body string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}
