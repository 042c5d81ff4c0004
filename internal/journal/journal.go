package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one broadcast transaction.
type Entry struct {
	TxID        string
	RunToken    string
	Path        string
	Kind        string // unit | chunk | manifest | split | version
	Vout        uint32
	ChunkIndex  int // -1 for non-chunk rows
	Size        int64
	Fee         int64
	Fingerprint string
	CreatedAt   time.Time
}

// Entry kinds.
const (
	KindUnit     = "unit"
	KindChunk    = "chunk"
	KindManifest = "manifest"
	KindSplit    = "split"
	KindVersion  = "version"
)

// Journal is the durable transaction log for deployments of one site.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database. Idempotent: pragmas and
// schema apply on every open. The parent directory is created when
// missing, since the journal is the first state file a run touches.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// One writer at a time avoids SQLITE_BUSY under concurrent
	// publish jobs; jobs serialize briefly on journal appends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open journal: %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append records one broadcast transaction. Idempotent on txid:
// re-appending after a crash replay is a no-op.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO publishes
		(txid, run_token, path, kind, vout, chunk_index, size, fee, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.TxID, e.RunToken, e.Path, e.Kind, e.Vout, e.ChunkIndex,
		e.Size, e.Fee, e.Fingerprint, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

// ByRun returns all entries of one run in insert order.
func (j *Journal) ByRun(ctx context.Context, runToken string) ([]Entry, error) {
	return j.query(ctx, `
		SELECT txid, run_token, path, kind, vout, chunk_index, size, fee, fingerprint, created_at
		FROM publishes WHERE run_token = ? ORDER BY rowid ASC
	`, runToken)
}

// RunTokens returns every run recorded in the journal, oldest first.
func (j *Journal) RunTokens(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_token FROM publishes GROUP BY run_token ORDER BY MIN(rowid) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ByPath returns all entries ever recorded for one unit path, newest
// last.
func (j *Journal) ByPath(ctx context.Context, path string) ([]Entry, error) {
	return j.query(ctx, `
		SELECT txid, run_token, path, kind, vout, chunk_index, size, fee, fingerprint, created_at
		FROM publishes WHERE path = ? ORDER BY rowid ASC
	`, path)
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.TxID, &e.RunToken, &e.Path, &e.Kind, &e.Vout,
			&e.ChunkIndex, &e.Size, &e.Fee, &e.Fingerprint, &created); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("journal scan: bad timestamp %q: %w", created, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
