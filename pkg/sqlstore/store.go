// ABOUTME: SQLite-backed DocumentStore keeping one JSON document per row
// ABOUTME: Opens the database, creates the collection table and loads documents

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nainya/bookquery/pkg/query"
	"github.com/nainya/bookquery/pkg/store"
)

const (
	DefaultCollection = "books"
	MemoryPath        = ":memory:"
)

// Options configures Open.
type Options struct {
	Path       string // Database file, or ":memory:"
	Collection string // Table holding the documents
}

// Store implements store.DocumentStore on top of SQLite's JSON functions.
type Store struct {
	db    *sql.DB
	table string
	owned bool
}

var _ store.DocumentStore = (*Store)(nil)

// Open opens (or creates) the database at opts.Path and ensures the
// collection table exists.
//
// A ":memory:" store runs on a single connection, so an open cursor from
// Find or Aggregate holds it: every other call on the store waits until
// that cursor is closed or its context expires.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlstore: database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", opts.Path)
	if opts.Path == MemoryPath {
		dsn = MemoryPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", opts.Path, err)
	}
	if opts.Path == MemoryPath {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db, opts.Collection)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an existing database handle. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, collection string) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if !query.ValidFieldName(collection) {
		return nil, fmt.Errorf("sqlstore: invalid collection name %q", collection)
	}

	s := &Store{db: db, table: collection}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, s.quotedTable())
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("sqlstore: create collection %s: %w", collection, err)
	}
	return s, nil
}

// Collection returns the table name.
func (s *Store) Collection() string { return s.table }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) quotedTable() string {
	return `"` + s.table + `"`
}

// InsertMany stores docs in one transaction and returns their ids. Any
// value that marshals to a JSON object is accepted; a missing "_id" is
// assigned.
func (s *Store) InsertMany(ctx context.Context, docs []interface{}) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES (?, ?)`, s.quotedTable()))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(docs))
	for i, d := range docs {
		id, raw, err := encodeDocument(d)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: document %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, id, raw); err != nil {
			return nil, fmt.Errorf("sqlstore: insert %s: %w", id, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlstore: commit insert: %w", err)
	}
	return ids, nil
}

func encodeDocument(d interface{}) (string, string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", "", err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", "", fmt.Errorf("not a JSON object: %w", err)
	}

	id, _ := doc["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}

	raw, err = json.Marshal(doc)
	if err != nil {
		return "", "", err
	}
	return id, string(raw), nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.quotedTable())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count: %w", err)
	}
	return n, nil
}

// Drop removes every document and every index of the collection.
func (s *Store) Drop(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL`, s.table)
	if err != nil {
		return fmt.Errorf("sqlstore: list indexes: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("sqlstore: list indexes: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlstore: list indexes: %w", err)
	}

	for _, name := range names {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS "%s"`, name)); err != nil {
			return fmt.Errorf("sqlstore: drop index %s: %w", name, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.quotedTable())); err != nil {
		return fmt.Errorf("sqlstore: clear collection: %w", err)
	}
	return nil
}
