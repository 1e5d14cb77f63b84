// Package store persists the small set of UI preferences that survive a
// restart. Conversation state deliberately never touches this store; only the
// dark-mode flag is durable.
package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const darkModeKey = "dark_mode"

type PrefStore struct {
	db *sql.DB
}

func NewPrefStore(dataSourceName string) (*PrefStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PrefStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PrefStore) Close() error {
	return s.db.Close()
}

func (s *PrefStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS preferences (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// DarkMode reports the stored preference; an unset key defaults to false.
func (s *PrefStore) DarkMode() (bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", darkModeKey).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query preference: %w", err)
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("corrupt preference value %q: %w", value, err)
	}
	return enabled, nil
}

func (s *PrefStore) SetDarkMode(enabled bool) error {
	_, err := s.db.Exec(
		"INSERT INTO preferences (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		darkModeKey, strconv.FormatBool(enabled),
	)
	if err != nil {
		return fmt.Errorf("failed to store preference: %w", err)
	}
	return nil
}
