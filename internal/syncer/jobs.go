// Package syncer runs background bulk-sync jobs: discover recent library
// recordings for a key, extract each transcript, and optionally write the
// results to Notion. Jobs are tracked in SQLite so status survives restarts.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/anatolykoptev/go_loom/internal/engine"
)

// Job statuses. Transitions are monotonic:
// queued → running → completed | failed.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one bulk-sync run and its progress counters.
type Job struct {
	JobID     string    `json:"jobId"`
	UserKey   string    `json:"userKey"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Written   int       `json:"written"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	jobsDB   *sql.DB
	jobsOnce sync.Once
	jobsErr  error
)

func openJobsDB() (*sql.DB, error) {
	jobsOnce.Do(func() {
		dir := engine.Cfg.DataDir
		if dir == "" {
			dir = filepath.Join(os.Getenv("HOME"), ".go_loom")
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			jobsErr = fmt.Errorf("syncer: mkdir %s: %w", dir, err)
			return
		}
		db, err := sql.Open("sqlite", filepath.Join(dir, "syncjobs.db"))
		if err != nil {
			jobsErr = fmt.Errorf("syncer: open db: %w", err)
			return
		}
		db.SetMaxOpenConns(1) // SQLite: single writer
		if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
			job_id     TEXT PRIMARY KEY,
			user_key   TEXT NOT NULL,
			status     TEXT NOT NULL,
			total      INTEGER NOT NULL DEFAULT 0,
			written    INTEGER NOT NULL DEFAULT 0,
			failed     INTEGER NOT NULL DEFAULT 0,
			error      TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`); err != nil {
			jobsErr = fmt.Errorf("syncer: init schema: %w", err)
			return
		}
		jobsDB = db
	})
	return jobsDB, jobsErr
}

// createJob inserts a fresh queued job and returns it.
func createJob(ctx context.Context, userKey string) (*Job, error) {
	db, err := openJobsDB()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	j := &Job{
		JobID:     uuid.NewString(),
		UserKey:   userKey,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.ExecContext(ctx, `INSERT INTO jobs
		(job_id, user_key, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		j.JobID, j.UserKey, j.Status,
		now.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("syncer: create job: %w", err)
	}
	return j, nil
}

// updateJob persists the job's current counters and status.
func updateJob(ctx context.Context, j *Job) error {
	db, err := openJobsDB()
	if err != nil {
		return err
	}
	j.UpdatedAt = time.Now()
	_, err = db.ExecContext(ctx, `UPDATE jobs
		SET status = ?, total = ?, written = ?, failed = ?, error = ?, updated_at = ?
		WHERE job_id = ?`,
		j.Status, j.Total, j.Written, j.Failed, j.Error,
		j.UpdatedAt.UTC().Format(time.RFC3339), j.JobID)
	return err
}

// GetJob looks up a job by id. Returns ErrNotFound for unknown ids.
func GetJob(ctx context.Context, jobID string) (*Job, error) {
	db, err := openJobsDB()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `SELECT job_id, user_key, status, total, written, failed,
		COALESCE(error, ''), created_at, updated_at FROM jobs WHERE job_id = ?`, jobID)

	var (
		j                    Job
		createdAt, updatedAt string
	)
	if err := row.Scan(&j.JobID, &j.UserKey, &j.Status, &j.Total, &j.Written, &j.Failed,
		&j.Error, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", engine.ErrNotFound, jobID)
		}
		return nil, err
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}
