package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	upsertRetries   = 3
	upsertBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements PreferenceRepository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed preference repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
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
	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		temperature REAL,
		speech_rate REAL,
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

// Get retrieves a user's preference.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*domain.UserPreference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT temperature, speech_rate FROM user_preferences WHERE user_id = ?`, userID)

	var temperature, speechRate sql.NullFloat64
	err := row.Scan(&temperature, &speechRate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan preference row: %w", err)
	}

	return toPreference(temperature, speechRate), nil
}

// SetTemperature stores a user's temperature.
func (s *SQLiteStore) SetTemperature(ctx context.Context, userID string, temperature float64) error {
	query := `
	INSERT INTO user_preferences (user_id, temperature, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		temperature = excluded.temperature,
		updated_at = excluded.updated_at`
	return s.upsert(ctx, "temperature", query, userID, temperature)
}

// SetSpeechRate stores a user's speech rate.
func (s *SQLiteStore) SetSpeechRate(ctx context.Context, userID string, rate float64) error {
	query := `
	INSERT INTO user_preferences (user_id, speech_rate, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		speech_rate = excluded.speech_rate,
		updated_at = excluded.updated_at`
	return s.upsert(ctx, "speech_rate", query, userID, rate)
}

func (s *SQLiteStore) upsert(ctx context.Context, field, query, userID string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := shared.RetryOnConflict(ctx, upsertRetries, upsertBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query, userID, value, time.Now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert %s for %s: %w", field, userID, err)
	}
	return nil
}

// All returns every stored preference.
func (s *SQLiteStore) All(ctx context.Context) (map[string]domain.UserPreference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, temperature, speech_rate FROM user_preferences`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close preference rows", "error", closeErr)
		}
	}()

	out := make(map[string]domain.UserPreference)
	for rows.Next() {
		var userID string
		var temperature, speechRate sql.NullFloat64
		if err := rows.Scan(&userID, &temperature, &speechRate); err != nil {
			return nil, fmt.Errorf("scan preference row: %w", err)
		}
		out[userID] = *toPreference(temperature, speechRate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func toPreference(temperature, speechRate sql.NullFloat64) *domain.UserPreference {
	pref := &domain.UserPreference{}
	if temperature.Valid {
		pref.Temperature = float64Ptr(temperature.Float64)
	}
	if speechRate.Valid {
		pref.SpeechRate = float64Ptr(speechRate.Float64)
	}
	return pref
}
