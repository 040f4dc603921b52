package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store backed by SQLite. Each invalid credential is
// one row, so merges only write the delta instead of rewriting the full
// state. Suited to deployments with large key inventories.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at the given
// path. The database runs in WAL mode with a single writer connection.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invalid_credentials (
		credential TEXT PRIMARY KEY,
		recorded_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load retrieves the persisted state.
func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT credential FROM invalid_credentials ORDER BY credential`)
	if err != nil {
		return nil, fmt.Errorf("failed to load invalid credentials: %w", err)
	}
	defer rows.Close()

	state := NewState()
	for rows.Next() {
		var credential string
		if err := rows.Scan(&credential); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		state.InvalidCredentials = append(state.InvalidCredentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credential rows: %w", err)
	}

	var updatedAt string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'updated_at'`).Scan(&updatedAt)
	if err == nil {
		if t, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
			state.UpdatedAt = t
		}
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	return state, nil
}

// Save replaces the persisted state wholesale.
func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invalid_credentials`); err != nil {
		return fmt.Errorf("failed to clear invalid credentials: %w", err)
	}

	now := time.Now().UTC()
	for _, credential := range state.InvalidCredentials {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invalid_credentials (credential, recorded_at) VALUES (?, ?)`,
			credential, now.Unix()); err != nil {
			return fmt.Errorf("failed to insert invalid credential: %w", err)
		}
	}

	if err := s.touchLocked(ctx, tx, now); err != nil {
		return err
	}
	return tx.Commit()
}

// MergeInvalidCredentials unions credentials into the persisted set.
// INSERT OR IGNORE keeps the operation idempotent; the metadata timestamp
// is only touched when at least one row was actually inserted.
func (s *SQLiteStore) MergeInvalidCredentials(ctx context.Context, credentials []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inserted := int64(0)
	for _, credential := range credentials {
		if credential == "" {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO invalid_credentials (credential, recorded_at) VALUES (?, ?)`,
			credential, now.Unix())
		if err != nil {
			return false, fmt.Errorf("failed to merge invalid credential: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted += n
		}
	}

	if inserted == 0 {
		return false, nil
	}

	if err := s.touchLocked(ctx, tx, now); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit merge: %w", err)
	}
	return true, nil
}

// ResetInvalidCredentials clears the persisted invalid set.
func (s *SQLiteStore) ResetInvalidCredentials(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM invalid_credentials`)
	if err != nil {
		return fmt.Errorf("failed to reset invalid credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('updated_at', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			time.Now().UTC().Format(time.RFC3339Nano))
	}
	return err
}

// Compact checkpoints the WAL and vacuums the database.
func (s *SQLiteStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

// touchLocked updates the updated_at metadata row inside a transaction.
func (s *SQLiteStore) touchLocked(ctx context.Context, tx *sql.Tx, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('updated_at', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}
