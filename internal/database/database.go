package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection used by the availability engine.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	ErrNotFound     = errors.New("not found")
	ErrLockConflict = errors.New("slot already locked")
)

// New opens (or creates) the database and ensures the schema exists.
func New(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and busy timeout keep concurrent availability reads cheap.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
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

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			buffer_minutes INTEGER NOT NULL DEFAULT 0,
			lead_time_minutes INTEGER NOT NULL DEFAULT 0,
			allows_twins BOOLEAN NOT NULL DEFAULT 0,
			twin_duration_minutes INTEGER NOT NULL DEFAULT 0,
			repeat_duration_minutes INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			staff_id INTEGER NOT NULL,
			location_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_recurring BOOLEAN NOT NULL DEFAULT 0,
			recurrence_rule TEXT,
			parent_shift_id INTEGER NOT NULL DEFAULT 0,
			exception_date DATETIME,
			cancelled BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (staff_id) REFERENCES staff(id),
			FOREIGN KEY (location_id) REFERENCES locations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS shift_services (
			shift_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			PRIMARY KEY (shift_id, service_id),
			FOREIGN KEY (shift_id) REFERENCES shifts(id) ON DELETE CASCADE,
			FOREIGN KEY (service_id) REFERENCES services(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			shift_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			client_name TEXT,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (shift_id) REFERENCES shifts(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,
		`CREATE TABLE IF NOT EXISTS blackout_periods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location_id INTEGER,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (location_id) REFERENCES locations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS shift_breaks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			shift_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			sitewide_break_id INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (shift_id) REFERENCES shifts(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS sitewide_breaks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			start_clock TEXT NOT NULL,
			end_clock TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			start_date DATETIME,
			end_date DATETIME,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS slot_locks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			shift_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			session_token TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (shift_id) REFERENCES shifts(id)
		)`,
		`CREATE TABLE IF NOT EXISTS continuation_tokens (
			token TEXT PRIMARY KEY,
			parent_booking_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (parent_booking_id) REFERENCES bookings(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_shifts_location_time ON shifts(location_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_staff ON shifts(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_parent ON shifts(parent_shift_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_shift_time ON bookings(shift_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_blackouts_location ON blackout_periods(location_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_shift_breaks_shift ON shift_breaks(shift_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slot_locks_shift ON slot_locks(shift_id, expires_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// placeholders builds a "?, ?, ?" list for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Ping verifies the connection, used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
