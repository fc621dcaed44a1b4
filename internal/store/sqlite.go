package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/shared"
	_ "modernc.org/sqlite"
)

const metaCreatedAt = "created_at"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := newSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newSQLiteStore verifies db and initializes its schema. db is closed on failure.
func newSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS items (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	created := strconv.FormatInt(time.Now().Unix(), 10)
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, metaCreatedAt, created); err != nil {
		return fmt.Errorf("record creation time: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetItem returns the value stored under key, or "" if none is stored.
func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get item %s: %w", key, err)
	}
	return value, nil
}

// SetItem stores value under key. An empty value deletes the item.
func (s *SQLiteStore) SetItem(ctx context.Context, key, value string) error {
	if value == "" {
		return s.DeleteItem(ctx, key)
	}

	query := `
	INSERT INTO items (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return s.execWithRetry(ctx, "set item", query, key, value, time.Now().Unix())
}

// DeleteItem removes the item stored under key.
func (s *SQLiteStore) DeleteItem(ctx context.Context, key string) error {
	return s.execWithRetry(ctx, "delete item", `DELETE FROM items WHERE key = ?`, key)
}

// LocalPreferences returns the editor visibility settings. Settings that were
// never written fall back to DefaultLocalPreferences.
func (s *SQLiteStore) LocalPreferences(ctx context.Context) (domain.LocalPreferences, error) {
	prefs := DefaultLocalPreferences

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM settings`)
	if err != nil {
		return prefs, fmt.Errorf("query settings: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close settings rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return prefs, fmt.Errorf("scan setting row: %w", err)
		}
		prefs.Set(name, value != 0)
	}
	if err := rows.Err(); err != nil {
		return prefs, fmt.Errorf("iterate settings: %w", err)
	}
	return prefs, nil
}

// SetLocalPreferences overwrites the editor visibility settings.
func (s *SQLiteStore) SetLocalPreferences(ctx context.Context, prefs domain.LocalPreferences) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings update: %w", err)
	}

	query := `
	INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	for _, key := range domain.PreferenceKeys {
		value := 0
		if prefs.Get(key) {
			value = 1
		}
		if _, err := tx.ExecContext(ctx, query, key, value, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings update: %w", err)
	}
	return nil
}

// SessionCreatedAt returns when the session store was first created.
func (s *SQLiteStore) SessionCreatedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaCreatedAt).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("get session creation time: %w", err)
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session creation time: %w", err)
	}
	return time.Unix(sec, 0), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execWithRetry runs a single write statement, retrying SQLITE_BUSY and
// "database is locked" failures with exponential backoff.
func (s *SQLiteStore) execWithRetry(ctx context.Context, op, query string, args ...any) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.execOnce(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite write busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *SQLiteStore) execOnce(ctx context.Context, query string, args ...any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
