package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storehive/assist/internal/domain"
	_ "modernc.org/sqlite"
)

// Persistence keys. The naming scheme is an implementation detail behind the
// Repository seam; the values match the widget's historical browser-storage
// layout so existing data migrates cleanly.
const (
	sessionKey        = "chatUser"
	adminKey          = "adminMode"
	botHistoryPrefix  = "messages_"
	chatHistoryPrefix = "chatMessages_"
)

// SQLiteStore implements Repository on a single key-value table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves the session record, or nil if absent or unparseable.
func (s *SQLiteStore) GetSession(ctx context.Context) (*domain.Session, error) {
	var sess domain.Session
	ok, err := s.get(ctx, sessionKey, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

// PutSession stores the session record.
func (s *SQLiteStore) PutSession(ctx context.Context, sess *domain.Session) error {
	return s.put(ctx, sessionKey, sess)
}

// DeleteSession removes the session record.
func (s *SQLiteStore) DeleteSession(ctx context.Context) error {
	return s.delete(ctx, sessionKey)
}

// GetAdminGrant retrieves the admin grant, or nil if absent or unparseable.
func (s *SQLiteStore) GetAdminGrant(ctx context.Context) (*domain.AdminGrant, error) {
	var grant domain.AdminGrant
	ok, err := s.get(ctx, adminKey, &grant)
	if err != nil || !ok {
		return nil, err
	}
	return &grant, nil
}

// PutAdminGrant stores the admin grant.
func (s *SQLiteStore) PutAdminGrant(ctx context.Context, grant *domain.AdminGrant) error {
	return s.put(ctx, adminKey, grant)
}

// DeleteAdminGrant removes the admin grant.
func (s *SQLiteStore) DeleteAdminGrant(ctx context.Context) error {
	return s.delete(ctx, adminKey)
}

// GetHistory retrieves one of a visitor's message buffers.
func (s *SQLiteStore) GetHistory(ctx context.Context, kind domain.HistoryKind, visitorID string) (*domain.History, error) {
	var h domain.History
	ok, err := s.get(ctx, historyKey(kind, visitorID), &h)
	if err != nil || !ok {
		return nil, err
	}
	return &h, nil
}

// PutHistory stores one of a visitor's message buffers.
func (s *SQLiteStore) PutHistory(ctx context.Context, kind domain.HistoryKind, visitorID string, h *domain.History) error {
	return s.put(ctx, historyKey(kind, visitorID), h)
}

// DeleteHistory removes one of a visitor's message buffers.
func (s *SQLiteStore) DeleteHistory(ctx context.Context, kind domain.HistoryKind, visitorID string) error {
	return s.delete(ctx, historyKey(kind, visitorID))
}

// DeleteAllHistories removes every message buffer regardless of owner.
func (s *SQLiteStore) DeleteAllHistories(ctx context.Context) (int64, error) {
	query := `DELETE FROM kv WHERE key LIKE ? ESCAPE '\' OR key LIKE ? ESCAPE '\'`
	result, err := s.db.ExecContext(ctx, query,
		likePrefix(botHistoryPrefix), likePrefix(chatHistoryPrefix))
	if err != nil {
		return 0, fmt.Errorf("delete history buffers: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

func historyKey(kind domain.HistoryKind, visitorID string) string {
	if kind == domain.HistoryAdmin {
		return chatHistoryPrefix + visitorID
	}
	return botHistoryPrefix + visitorID
}

func likePrefix(prefix string) string {
	return strings.ReplaceAll(prefix, "_", `\_`) + "%"
}

// get decodes the value at key into v. A missing key returns (false, nil).
// A value that fails to parse is removed and reported as missing: corrupted
// records fail open to "absent", never to an error.
func (s *SQLiteStore) get(ctx context.Context, key string, v any) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)

	var raw []byte
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("Discarding unparseable record", "key", key, "error", err)
		if delErr := s.delete(ctx, key); delErr != nil {
			return false, delErr
		}
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return s.withRetry(func() error {
		if _, err := s.db.ExecContext(ctx, query, key, raw, time.Now().Unix()); err != nil {
			return fmt.Errorf("write %q: %w", key, err)
		}
		return nil
	})
}

func (s *SQLiteStore) delete(ctx context.Context, key string) error {
	return s.withRetry(func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		return nil
	})
}

// withRetry runs op with bounded exponential backoff on SQLite concurrency
// errors (SQLITE_BUSY, "database is locked").
func (s *SQLiteStore) withRetry(op func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !isSQLiteConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Database locked, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}

func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
