package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using a SQLite database. It is the shared
// durable store across concurrent runs, so the connection pool is bounded
// to avoid resource exhaustion when many runs checkpoint at once.
type SQLiteStore struct {
	db      *sql.DB
	dbPath  string
	options SQLiteStoreOptions
}

// SQLiteStoreOptions configures the SQLite store
type SQLiteStoreOptions struct {
	QueryTimeout      time.Duration // Timeout for database queries
	PragmaJournalMode string        // WAL mode for better concurrent performance
	PragmaSyncMode    string        // Synchronization mode
	MaxConnections    int           // Maximum number of connections in pool
}

// DefaultSQLiteStoreOptions returns sensible defaults
func DefaultSQLiteStoreOptions() SQLiteStoreOptions {
	return SQLiteStoreOptions{
		QueryTimeout:      30 * time.Second,
		PragmaJournalMode: "WAL",
		PragmaSyncMode:    "NORMAL",
		MaxConnections:    15,
	}
}

// NewSQLiteStore creates a new SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string, options SQLiteStoreOptions) (*SQLiteStore, error) {
	if options.MaxConnections == 0 {
		options = DefaultSQLiteStoreOptions()
	}

	store := &SQLiteStore{
		dbPath:  dbPath,
		options: options,
	}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	return store, nil
}

// initialize sets up the database connection and schema
func (s *SQLiteStore) initialize() error {
	dsn := fmt.Sprintf("%s?_journal_mode=%s&_sync=%s&_timeout=5000",
		s.dbPath, s.options.PragmaJournalMode, s.options.PragmaSyncMode)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	// Configure connection pool
	s.db.SetMaxOpenConns(s.options.MaxConnections)
	s.db.SetMaxIdleConns(s.options.MaxConnections / 2)
	s.db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), s.options.QueryTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_blobs_updated ON blobs(updated_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.options.QueryTimeout)
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to put blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
