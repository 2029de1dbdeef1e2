package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/dfigueira/walletctl/internal/wallet"
)

// The persisted record is keyed by a single well-known name; its presence
// means a prior grant exists and absence means disconnected.
const walletInfoKey = "walletInfo"

// Record is the durable part of a session. The balance is deliberately not
// part of it: balances are always refetched.
type Record struct {
	Provider wallet.ProviderID
	Address  string
}

// Store persists the wallet session record across process restarts.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS wallet_info (
			key TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			address TEXT NOT NULL,
			saved_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init session schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(rec Record) error {
	if rec.Provider == "" || rec.Address == "" {
		return fmt.Errorf("save session: provider and address are required")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock session store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock session store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO wallet_info (key, provider, address, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			provider=excluded.provider,
			address=excluded.address,
			saved_at=excluded.saved_at
	`, walletInfoKey, string(rec.Provider), rec.Address, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the persisted record, if any.
func (s *Store) Load() (Record, bool, error) {
	var provider, address string
	err := s.db.QueryRow("SELECT provider, address FROM wallet_info WHERE key = ?", walletInfoKey).Scan(&provider, &address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read session: %w", err)
	}
	return Record{Provider: wallet.ProviderID(provider), Address: address}, true, nil
}

// Clear removes the persisted record. Clearing an absent record is not an
// error.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM wallet_info WHERE key = ?", walletInfoKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
