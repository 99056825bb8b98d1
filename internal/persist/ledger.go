package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status is the outcome recorded for a set event.
type Status string

const (
	StatusPending Status = "pending"
	StatusSaved   Status = "saved"
	StatusFailed  Status = "failed"
	StatusLocal   Status = "local"
)

// Entry is one row of local history.
type Entry struct {
	EventID   uuid.UUID `json:"event_id"`
	SessionID uuid.UUID `json:"session_id"`
	Exercise  string    `json:"exercise"`
	SetNumber int       `json:"set_number"`
	Reps      int       `json:"reps"`
	Accuracy  float64   `json:"accuracy"`
	AutoSave  bool      `json:"auto_save"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger records every set completion event so the same event is never
// submitted twice. It doubles as local history.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the SQLite ledger at dir/ledger.db.
func OpenLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS set_events (
		event_id   TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		exercise   TEXT NOT NULL,
		set_number INTEGER NOT NULL,
		reps       INTEGER NOT NULL,
		accuracy   REAL NOT NULL,
		auto_save  INTEGER NOT NULL,
		status     TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Claim inserts a pending row for rec. It returns false when the event was
// already claimed.
func (l *Ledger) Claim(ctx context.Context, rec Record) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO set_events
			(event_id, session_id, exercise, set_number, reps, accuracy, auto_save, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID.String(), rec.SessionID.String(), rec.Exercise, rec.SetNumber,
		rec.Reps, rec.Accuracy, rec.AutoSave, string(StatusPending),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("claiming event %s: %w", rec.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming event %s: %w", rec.EventID, err)
	}
	return n == 1, nil
}

// Finish records the final status of a claimed event.
func (l *Ledger) Finish(ctx context.Context, eventID uuid.UUID, status Status, errMsg string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE set_events SET status = ?, error = ? WHERE event_id = ?`,
		string(status), errMsg, eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("finishing event %s: %w", eventID, err)
	}
	return nil
}

// History returns the most recent entries, newest first. limit <= 0 means all.
func (l *Ledger) History(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT event_id, session_id, exercise, set_number, reps, accuracy, auto_save, status, error, created_at
		FROM set_events ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			eventID, sessionID string
			status, created    string
		)
		if err := rows.Scan(&eventID, &sessionID, &e.Exercise, &e.SetNumber, &e.Reps,
			&e.Accuracy, &e.AutoSave, &status, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if e.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("parsing event id %q: %w", eventID, err)
		}
		if e.SessionID, err = uuid.Parse(sessionID); err != nil {
			return nil, fmt.Errorf("parsing session id %q: %w", sessionID, err)
		}
		e.Status = Status(status)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the ledger database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
