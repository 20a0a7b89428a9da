package radwatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SettingsStoreConfig configures the SQLite-backed settings store.
type SettingsStoreConfig struct {
	// Path to the SQLite database file
	Path string

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// BusyTimeout is the timeout for acquiring locks in milliseconds
	BusyTimeout int

	// MaxConnections is the max number of database connections
	MaxConnections int
}

// DefaultSettingsStoreConfig returns default configuration.
func DefaultSettingsStoreConfig(path string) SettingsStoreConfig {
	return SettingsStoreConfig{
		Path:           path,
		JournalMode:    "WAL",
		BusyTimeout:    5000,
		MaxConnections: 4,
	}
}

// SettingsStore persists per-device engine options in SQLite so tuned
// parameters survive restarts. Options are stored as JSON keyed by device
// ID; loading returns exactly what was saved, ready for Engine.Configure.
type SettingsStore struct {
	db     *sql.DB
	config SettingsStoreConfig
	mu     sync.Mutex
	closed bool
}

// NewSettingsStore opens (creating if needed) a settings database.
func NewSettingsStore(config SettingsStoreConfig) (*SettingsStore, error) {
	if config.Path == "" {
		return nil, newConfigError("path", "settings database path required")
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5000
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 4
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d",
		config.Path, config.JournalMode, config.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)

	store := &SettingsStore{db: db, config: config}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize settings schema: %w", err)
	}
	return store, nil
}

func (s *SettingsStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_settings (
			device_id  TEXT PRIMARY KEY,
			options    TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	return err
}

// Save upserts the options for a device.
func (s *SettingsStore) Save(ctx context.Context, deviceID string, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	if deviceID == "" {
		return newConfigError("device_id", "device id required")
	}

	payload, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engine_settings (device_id, options, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			options = excluded.options,
			updated_at = excluded.updated_at`,
		deviceID, string(payload), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Load returns the saved options for a device, or ErrSettingsNotFound.
func (s *SettingsStore) Load(ctx context.Context, deviceID string) (Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Options{}, ErrEngineClosed
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT options FROM engine_settings WHERE device_id = ?`, deviceID).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Options{}, fmt.Errorf("device %q: %w", deviceID, ErrSettingsNotFound)
	}
	if err != nil {
		return Options{}, fmt.Errorf("load settings: %w", err)
	}

	var opts Options
	if err := json.Unmarshal([]byte(payload), &opts); err != nil {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}

// Delete removes the saved options for a device. Deleting a device that
// has no saved options is not an error.
func (s *SettingsStore) Delete(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM engine_settings WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

// List returns all device IDs with saved options, sorted.
func (s *SettingsStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEngineClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id FROM engine_settings ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *SettingsStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
