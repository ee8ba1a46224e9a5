package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// ErrNotFound is returned when an entry doesn't exist.
var ErrNotFound = errors.New("entry not found")

// Store is the exchange history database.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	lastHash string
	lastSeq  uint64
}

// OpenStore opens or creates the history database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{db: db}
	if err := store.loadLastEntry(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			seq        INTEGER PRIMARY KEY,
			ts         TEXT NOT NULL,
			session_id TEXT NOT NULL,
			account    TEXT NOT NULL,
			outcome    TEXT NOT NULL,
			prev_hash  TEXT NOT NULL,
			data       TEXT NOT NULL,
			hash       TEXT NOT NULL UNIQUE
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_account ON attempts(account);
		CREATE INDEX IF NOT EXISTS idx_attempts_ts ON attempts(ts);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

func (s *Store) loadLastEntry() error {
	row := s.db.QueryRow(`SELECT seq, hash FROM attempts ORDER BY seq DESC LIMIT 1`)
	var seq uint64
	var hash string
	err := row.Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading last entry: %w", err)
	}
	s.lastSeq = seq
	s.lastHash = hash
	return nil
}

// Record appends an attempt.
func (s *Store) Record(a Attempt) error {
	_, err := s.Append(a)
	return err
}

// Append adds an attempt to the chain and returns the stored entry.
func (s *Store) Append(a Attempt) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := NewEntry(s.lastSeq+1, s.lastHash, a)

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling attempt: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO attempts (seq, ts, session_id, account, outcome, prev_hash, data, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Sequence, entry.Timestamp.Format(time.RFC3339Nano),
		a.SessionID, a.Account, a.Outcome, entry.PrevHash, string(data), entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("inserting entry: %w", err)
	}

	s.lastSeq = entry.Sequence
	s.lastHash = entry.Hash
	return entry, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves an entry by sequence number.
func (s *Store) Get(seq uint64) (*Entry, error) {
	row := s.db.QueryRow(`SELECT seq, ts, prev_hash, data, hash FROM attempts WHERE seq = ?`, seq)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Count returns the number of entries.
func (s *Store) Count() (uint64, error) {
	var count uint64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return count, nil
}

// Recent returns up to limit entries, newest first. An account filter of ""
// matches all accounts.
func (s *Store) Recent(limit int, account string) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT seq, ts, prev_hash, data, hash FROM attempts`
	args := []any{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// All returns every entry in sequence order.
func (s *Store) All() ([]*Entry, error) {
	rows, err := s.db.Query(`SELECT seq, ts, prev_hash, data, hash FROM attempts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func collect(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var tsStr, dataStr string
	if err := row.Scan(&e.Sequence, &tsStr, &e.PrevHash, &dataStr, &e.Hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	var err error
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr); err != nil {
		return nil, fmt.Errorf("parsing timestamp of entry %d: %w", e.Sequence, err)
	}
	if err := json.Unmarshal([]byte(dataStr), &e.Attempt); err != nil {
		return nil, fmt.Errorf("parsing entry %d: %w", e.Sequence, err)
	}
	return &e, nil
}
