package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"candleView/internal/domain"
	"candleView/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Preference keys. Only these two chart settings outlive a session.
const (
	keyLogScale      = "log_scale"
	keyTimeFormat12h = "time_format_12h"
)

// Repository implements the ports.PreferenceStore interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/candleview.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Load reads the persisted preferences. Keys never written fall back to
// their zero-value defaults instead of erroring.
func (r *Repository) Load(ctx context.Context) (domain.Preferences, error) {
	prefs := domain.Preferences{}

	logScale, found, err := r.getBool(ctx, keyLogScale)
	if err != nil {
		return prefs, fmt.Errorf("failed to load preference %s: %w", keyLogScale, err)
	}
	if found {
		prefs.LogScale = logScale
	}

	twelveHour, found, err := r.getBool(ctx, keyTimeFormat12h)
	if err != nil {
		return prefs, fmt.Errorf("failed to load preference %s: %w", keyTimeFormat12h, err)
	}
	if found {
		prefs.TimeFormat12h = twelveHour
	}

	r.logger.Debug(ctx, "Preferences loaded", map[string]interface{}{
		"logScale":      prefs.LogScale,
		"timeFormat12h": prefs.TimeFormat12h,
	})
	return prefs, nil
}

// SaveLogScale persists the price-axis mode toggle.
func (r *Repository) SaveLogScale(ctx context.Context, enabled bool) error {
	return r.setBool(ctx, keyLogScale, enabled)
}

// SaveTimeFormat12h persists the time-label format toggle.
func (r *Repository) SaveTimeFormat12h(ctx context.Context, enabled bool) error {
	return r.setBool(ctx, keyTimeFormat12h, enabled)
}

// getBool reads one preference row. found is false when the key was
// never written.
func (r *Repository) getBool(ctx context.Context, key string) (value, found bool, err error) {
	const query = `SELECT value FROM preferences WHERE key = ?`
	var stored int
	err = r.db.QueryRowContext(ctx, query, key).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil // Not an error, just never written
		}
		return false, false, fmt.Errorf("failed to query preference %s: %w: %w", key, ports.ErrQueryFailed, err)
	}
	return stored != 0, true, nil
}

// setBool upserts one preference row.
func (r *Repository) setBool(ctx context.Context, key string, value bool) error {
	const query = `
	INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	stored := 0
	if value {
		stored = 1
	}
	_, err := r.db.ExecContext(ctx, query, key, stored, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist preference %s: %w: %w", key, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Preference saved", map[string]interface{}{"key": key, "value": value})
	return nil
}
