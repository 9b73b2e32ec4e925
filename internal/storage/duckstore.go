package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// DuckStore keeps the key/value table in a DuckDB file so state survives
// restarts of the daemon.
type DuckStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	log    *zap.Logger
	closed bool
}

type duckSettings struct {
	threads     int
	memoryLimit string
}

// DuckOption tunes the DuckDB engine.
type DuckOption func(*duckSettings)

// WithThreads sets the engine's worker thread count.
func WithThreads(n int) DuckOption {
	return func(s *duckSettings) {
		if n > 0 {
			s.threads = n
		}
	}
}

// WithMemoryLimit caps the engine's memory, e.g. "256MB".
func WithMemoryLimit(limit string) DuckOption {
	return func(s *duckSettings) { s.memoryLimit = limit }
}

// NewDuckStore opens (or creates) the database file at dbPath.
func NewDuckStore(dbPath string, log *zap.Logger, opts ...DuckOption) (*DuckStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	settings := duckSettings{threads: 1}
	for _, opt := range opts {
		opt(&settings)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA threads=%d", settings.threads),
			"PRAGMA enable_progress_bar=false",
		}
		if settings.memoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", settings.memoryLimit))
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.Warn("pragma failed", zap.String("pragma", pragma), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        VARCHAR PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	log.Debug("store opened", zap.String("path", dbPath))
	return &DuckStore{db: db, dbPath: dbPath, log: log}, nil
}

// Path returns the database file location.
func (s *DuckStore) Path() string {
	return s.dbPath
}

// Get implements Store.
func (s *DuckStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := Decode(raw, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set implements Store.
func (s *DuckStore) Set(ctx context.Context, values map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	now := time.Now()
	for key, v := range values {
		raw, err := Encode(v)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO kv VALUES (?, ?, ?)", key, raw, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Remove implements Store.
func (s *DuckStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			tx.Rollback()
			return fmt.Errorf("removing %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *DuckStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
