package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Journal records terminal executions. In-flight state never touches disk;
// a row appears only when an execution reaches success or error.
type Journal struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenJournal(path, lockPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			asset TEXT NOT NULL,
			amount TEXT NOT NULL,
			recipient TEXT NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			result_hash TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_executions_updated ON executions(updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Journal{db: db, lock: flock.New(lockPath)}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Save upserts a terminal record. A retried execution keeps its id, so a
// later success overwrites the earlier error row.
func (j *Journal) Save(rec Record) error {
	if !rec.State.Terminal() {
		return fmt.Errorf("journal: refusing to save non-terminal execution %s (%s)", rec.ID, rec.State)
	}
	locked, err := j.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = j.lock.Unlock() }()

	_, err = j.db.Exec(`
		INSERT INTO executions (id, asset, amount, recipient, state, attempts, last_error, result_hash, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			attempts=excluded.attempts,
			last_error=excluded.last_error,
			result_hash=excluded.result_hash,
			updated_at=excluded.updated_at
	`, rec.ID, rec.Intent.Asset, rec.Intent.AmountDecimal, rec.Intent.Recipient,
		string(rec.State), rec.Attempts, rec.LastError, rec.ResultHash,
		rec.StartedAt.Unix(), rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// List returns journaled executions, newest first. state filters when
// non-empty; limit <= 0 means no limit.
func (j *Journal) List(state State, limit int) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, asset, amount, recipient, state, attempts, last_error, result_hash, started_at, updated_at FROM executions")
	var args []any
	if state != "" {
		sb.WriteString(" WHERE state = ?")
		args = append(args, string(state))
	}
	sb.WriteString(" ORDER BY updated_at DESC, id")
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := j.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var state string
		var started, updated int64
		if err := rows.Scan(&rec.ID, &rec.Intent.Asset, &rec.Intent.AmountDecimal, &rec.Intent.Recipient,
			&state, &rec.Attempts, &rec.LastError, &rec.ResultHash, &started, &updated); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		rec.State = State(state)
		rec.StartedAt = time.Unix(started, 0).UTC()
		rec.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return out, nil
}
