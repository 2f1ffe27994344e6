package tier

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is a Store backed by a single SQLite database. All tiers
// share one table. Insertion order is tracked through the table rowid:
// INSERT OR REPLACE assigns a new rowid, so replaced entries move to the
// back of their tier.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore opens the store with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("could not open database: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		tier TEXT NOT NULL,
		key TEXT NOT NULL,
		stored_at INTEGER NOT NULL,
		bytes BLOB NOT NULL,
		PRIMARY KEY (tier, key)
	)`)
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("could not create entries table: %w", err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS tier_idx ON entries (tier)")
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("could not create tier index: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("could not enable WAL: %w", err)
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStore) Get(tier, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM entries WHERE tier = ? AND key = ?", tier, key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteStore) Put(tier, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO entries (tier, key, stored_at, bytes) VALUES (?, ?, ?, ?)",
		tier, key, time.Now().Unix(), bytes)
	return err
}

func (s SQLiteStore) PutAll(tier string, entries []Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, entry := range entries {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO entries (tier, key, stored_at, bytes) VALUES (?, ?, ?, ?)",
			tier, entry.Key, now, entry.Bytes)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s SQLiteStore) Delete(tier, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE tier = ? AND key = ?", tier, key)
	return err
}

func (s SQLiteStore) Count(tier string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM entries WHERE tier = ?", tier).Scan(&count)
	return count, err
}

func (s SQLiteStore) OldestKeys(tier string, n int) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT key FROM entries WHERE tier = ? ORDER BY rowid ASC LIMIT ?", tier, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0, n)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s SQLiteStore) Tiers() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT tier FROM entries ORDER BY tier")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tiers := make([]string, 0)
	for rows.Next() {
		var tier string
		if err := rows.Scan(&tier); err != nil {
			return tiers, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

func (s SQLiteStore) Drop(tier string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE tier = ?", tier)
	return err
}

// Close closes the underlying database.
func (s SQLiteStore) Close() error {
	return s.db.Close()
}
