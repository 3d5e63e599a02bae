// Package session implements the per-user-key session actor: cookie jar
// ownership, expiry bookkeeping, the keep-alive refresh state machine, and
// the execution history behind the dashboard endpoints. All state for a key
// lives in the actor's private storage and is never shared across keys.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
)

// Session is the stored authenticated-cookie state for one user key.
type Session struct {
	UserKey    string
	Cookies    []loom.Cookie
	UploadedAt time.Time
	Active     bool
}

// ExpiresAt derives the hard validity bound from the upload time.
func (s *Session) ExpiresAt() time.Time {
	return s.UploadedAt.Add(engine.Cfg.SessionTTL)
}

// ExecutionRecord is one append-only sync-attempt log entry.
type ExecutionRecord struct {
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Success     bool      `json:"success"`
	Clips       int       `json:"clips"`
	Meetings    int       `json:"meetings"`
	Error       string    `json:"error,omitempty"`
}

// executionHistoryLimit bounds the per-key execution log; oldest entries are
// dropped on overflow.
const executionHistoryLimit = 100

var (
	sessionDB   *sql.DB
	sessionOnce sync.Once
	sessionErr  error
)

// openSessionDB opens (or creates) the SQLite session database.
func openSessionDB() (*sql.DB, error) {
	sessionOnce.Do(func() {
		dir := engine.Cfg.DataDir
		if dir == "" {
			dir = filepath.Join(os.Getenv("HOME"), ".go_loom")
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			sessionErr = fmt.Errorf("session: mkdir %s: %w", dir, err)
			return
		}
		dbPath := filepath.Join(dir, "sessions.db")
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			sessionErr = fmt.Errorf("session: open db: %w", err)
			return
		}
		db.SetMaxOpenConns(1) // SQLite: single writer
		if err := initSessionSchema(db); err != nil {
			sessionErr = fmt.Errorf("session: init schema: %w", err)
			return
		}
		sessionDB = db
	})
	return sessionDB, sessionErr
}

// initSessionSchema creates the session tables if they don't exist.
func initSessionSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			user_key    TEXT PRIMARY KEY,
			cookies     TEXT NOT NULL,
			uploaded_at TEXT NOT NULL,
			active      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_schedule (
			user_key TEXT PRIMARY KEY,
			next_due TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_key     TEXT NOT NULL,
			started_at   TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			success      INTEGER NOT NULL,
			clips        INTEGER NOT NULL,
			meetings     INTEGER NOT NULL,
			error        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_key ON executions(user_key, id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// saveSession upserts the session row for its key.
func saveSession(ctx context.Context, s *Session) error {
	db, err := openSessionDB()
	if err != nil {
		return err
	}
	cookies, err := json.Marshal(s.Cookies)
	if err != nil {
		return fmt.Errorf("session: encode cookies: %w", err)
	}
	active := 0
	// A session with zero cookies is never active.
	if s.Active && len(s.Cookies) > 0 {
		active = 1
	}
	_, err = db.ExecContext(ctx, `INSERT INTO sessions (user_key, cookies, uploaded_at, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_key) DO UPDATE SET cookies=excluded.cookies,
			uploaded_at=excluded.uploaded_at, active=excluded.active`,
		s.UserKey, string(cookies), s.UploadedAt.UTC().Format(time.RFC3339), active)
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// loadSession returns the stored session, or nil when the key has none.
func loadSession(ctx context.Context, userKey string) (*Session, error) {
	db, err := openSessionDB()
	if err != nil {
		return nil, err
	}
	var (
		cookiesJSON string
		uploadedAt  string
		active      int
	)
	row := db.QueryRowContext(ctx,
		`SELECT cookies, uploaded_at, active FROM sessions WHERE user_key = ?`, userKey)
	if err := row.Scan(&cookiesJSON, &uploadedAt, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	s := &Session{UserKey: userKey, Active: active == 1}
	if err := json.Unmarshal([]byte(cookiesJSON), &s.Cookies); err != nil {
		return nil, fmt.Errorf("session: decode cookies: %w", err)
	}
	if s.UploadedAt, err = time.Parse(time.RFC3339, uploadedAt); err != nil {
		return nil, fmt.Errorf("session: parse uploaded_at: %w", err)
	}
	return s, nil
}

// listSessionKeys returns every user key with a stored session row.
func listSessionKeys(ctx context.Context) ([]string, error) {
	db, err := openSessionDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT user_key FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// deleteSession removes the session row entirely (disconnect).
func deleteSession(ctx context.Context, userKey string) error {
	db, err := openSessionDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM sessions WHERE user_key = ?`, userKey)
	return err
}

// saveSchedule persists the single pending wake-up for a key, replacing any
// prior one.
func saveSchedule(ctx context.Context, userKey string, nextDue time.Time) error {
	db, err := openSessionDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO refresh_schedule (user_key, next_due) VALUES (?, ?)
		ON CONFLICT(user_key) DO UPDATE SET next_due=excluded.next_due`,
		userKey, nextDue.UTC().Format(time.RFC3339))
	return err
}

// loadSchedule returns the pending wake-up, or zero time when none.
func loadSchedule(ctx context.Context, userKey string) (time.Time, error) {
	db, err := openSessionDB()
	if err != nil {
		return time.Time{}, err
	}
	var nextDue string
	row := db.QueryRowContext(ctx, `SELECT next_due FROM refresh_schedule WHERE user_key = ?`, userKey)
	if err := row.Scan(&nextDue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, nextDue)
}

// clearSchedule cancels the persisted wake-up.
func clearSchedule(ctx context.Context, userKey string) error {
	db, err := openSessionDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM refresh_schedule WHERE user_key = ?`, userKey)
	return err
}

// appendExecution records a sync attempt and trims the ring to the most
// recent entries.
func appendExecution(ctx context.Context, userKey string, rec ExecutionRecord) error {
	db, err := openSessionDB()
	if err != nil {
		return err
	}
	success := 0
	if rec.Success {
		success = 1
	}
	_, err = db.ExecContext(ctx, `INSERT INTO executions
		(user_key, started_at, completed_at, success, clips, meetings, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userKey,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.CompletedAt.UTC().Format(time.RFC3339),
		success, rec.Clips, rec.Meetings, rec.Error)
	if err != nil {
		return fmt.Errorf("session: append execution: %w", err)
	}
	_, err = db.ExecContext(ctx, `DELETE FROM executions WHERE user_key = ? AND id NOT IN
		(SELECT id FROM executions WHERE user_key = ? ORDER BY id DESC LIMIT ?)`,
		userKey, userKey, executionHistoryLimit)
	return err
}

// listExecutions returns up to limit records, newest first.
func listExecutions(ctx context.Context, userKey string, limit int) ([]ExecutionRecord, error) {
	db, err := openSessionDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > executionHistoryLimit {
		limit = executionHistoryLimit
	}
	rows, err := db.QueryContext(ctx, `SELECT started_at, completed_at, success, clips, meetings, COALESCE(error, '')
		FROM executions WHERE user_key = ? ORDER BY id DESC LIMIT ?`, userKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var (
			rec                  ExecutionRecord
			startedAt, completed string
			success              int
		)
		if err := rows.Scan(&startedAt, &completed, &success, &rec.Clips, &rec.Meetings, &rec.Error); err != nil {
			return nil, err
		}
		rec.Success = success == 1
		rec.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		rec.CompletedAt, _ = time.Parse(time.RFC3339, completed)
		out = append(out, rec)
	}
	return out, rows.Err()
}
