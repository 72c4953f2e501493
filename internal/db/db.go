package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrBusy marks SQLite lock contention that outlived the busy timeout.
	ErrBusy = errors.New("database is busy")
)

// NewDB opens the database and creates the schema if it doesn't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate makes every BeginTx take the write lock up front, so
	// two allocators never both read "free" and then race to insert.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			capacity INTEGER NOT NULL DEFAULT 1,
			timezone TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tariffs (
			id INTEGER PRIMARY KEY,
			service_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL DEFAULT 60,
			price INTEGER NOT NULL DEFAULT 0,
			sessions_count INTEGER NOT NULL DEFAULT 1,
			is_default BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY(service_id) REFERENCES services(id)
		)`,
		`CREATE TABLE IF NOT EXISTS holidays (
			service_id INTEGER NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(service_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			service_id INTEGER PRIMARY KEY,
			slot_duration INTEGER NOT NULL,
			break_minutes INTEGER NOT NULL DEFAULT 0,
			max_bookings_per_day INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(service_id) REFERENCES services(id)
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_days (
			service_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY(service_id, day_of_week),
			FOREIGN KEY(service_id) REFERENCES schedules(service_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_windows (
			service_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			position INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			PRIMARY KEY(service_id, day_of_week, position),
			FOREIGN KEY(service_id) REFERENCES schedules(service_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service_id INTEGER NOT NULL,
			tariff_id INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			scheduled_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			duration_minutes INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			price_paid INTEGER NOT NULL DEFAULT 0,
			client_note TEXT NOT NULL DEFAULT '',
			provider_note TEXT NOT NULL DEFAULT '',
			cancel_reason TEXT NOT NULL DEFAULT '',
			cancelled_by INTEGER,
			chat_room_id TEXT,
			confirmed_at DATETIME,
			cancelled_at DATETIME,
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY(service_id) REFERENCES services(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_service_time ON bookings(service_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_client ON bookings(client_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_end ON bookings(status, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tariffs_service ON tariffs(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_services_owner ON services(owner_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// classify maps driver lock contention to ErrBusy so callers can retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		if sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}

// IsBusy reports whether err is lock contention worth retrying.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
