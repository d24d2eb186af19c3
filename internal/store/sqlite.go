// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Keeps an append-only audit trail of history entries with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/engine-bridge/internal/history"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if inMemory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// WAL lets status reads proceed while the history sink writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS history (
			seq          INTEGER PRIMARY KEY,
			origin       TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			CHECK (origin IN (
				'client_direct',
				'client_nl_request',
				'llm_response',
				'engine_inbound',
				'engine_outbound'
			))
		);

		CREATE INDEX IF NOT EXISTS idx_history_origin ON history(origin);
		CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveEntry stores a history entry. Duplicate sequence numbers are ignored.
func (s *SQLiteStore) SaveEntry(ctx context.Context, entry history.Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := `
		INSERT OR IGNORE INTO history (seq, origin, payload_json, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		int64(entry.Seq),
		string(entry.Origin),
		string(entry.Payload),
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry %d: %w", entry.Seq, err)
	}
	return nil
}

// ListEntries returns entries after afterSeq in ascending sequence order.
func (s *SQLiteStore) ListEntries(ctx context.Context, afterSeq uint64, limit int) ([]history.Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	query := `
		SELECT seq, origin, payload_json, created_at
		FROM history
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, int64(afterSeq), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := []history.Entry{}
	for rows.Next() {
		var (
			seq       int64
			origin    string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&seq, &origin, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for seq %d: %w", seq, err)
		}
		entries = append(entries, history.Entry{
			Seq:       uint64(seq),
			Origin:    history.Origin(origin),
			Timestamp: ts,
			Payload:   []byte(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}

// LastSequence returns the highest stored sequence number.
func (s *SQLiteStore) LastSequence(ctx context.Context) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM history`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("querying last sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// Close closes the database connection. Later calls return ErrClosed.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}
