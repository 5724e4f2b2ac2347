package persist

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the settings in a SQLite table, one row per key.
// Values are validated against the same fixed layout as ImageStore.
// All public methods are safe for concurrent use (SQLite serializes writes).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a settings store at the given database path.
// The schema is created automatically on first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the value of key. A missing row loads as a blank field.
func (s *SQLiteStore) Load(key Key) ([]byte, error) {
	f, err := lookup(key)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return f.decode(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return f.decode(value), nil
}

// Store upserts the value of key.
func (s *SQLiteStore) Store(key Key, value []byte) error {
	if err := s.StoreAll(map[Key][]byte{key: value}); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// StoreAll upserts every value inside one transaction.
func (s *SQLiteStore) StoreAll(values map[Key][]byte) error {
	for k, v := range values {
		if _, err := check(k, v); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range values {
		if v == nil {
			v = []byte{}
		}
		_, err := tx.Exec(
			`INSERT INTO settings (key, value, updated_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE
			 SET value = excluded.value, updated_at = excluded.updated_at`,
			string(k), v, now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Erase deletes the given keys, or every key when none are given.
func (s *SQLiteStore) Erase(keys ...Key) error {
	if len(keys) == 0 {
		if _, err := s.db.Exec(`DELETE FROM settings`); err != nil {
			return fmt.Errorf("erase: %w", err)
		}
		return nil
	}
	for _, k := range keys {
		if _, err := lookup(k); err != nil {
			return err
		}
		if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, string(k)); err != nil {
			return fmt.Errorf("erase %s: %w", k, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
