package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/session"
)

// Extractor is the slice of the session actor a sync run drives.
type Extractor interface {
	ListItems(ctx context.Context, days int) ([]loom.Item, error)
	ExtractItem(ctx context.Context, item loom.Item) (*session.Result, error)
	RecordExecution(ctx context.Context, rec session.ExecutionRecord) error
}

// PageWriter lands one extracted transcript in the external doc store.
type PageWriter interface {
	WriteTranscript(ctx context.Context, item loom.Item, res *session.Result) error
}

// FetchSummary is the result of a synchronous fetch-only sync.
type FetchSummary struct {
	Clips    int `json:"clips"`
	Meetings int `json:"meetings"`
	Failed   int `json:"failed"`
}

// FetchOnly extracts every recent recording synchronously without writing
// anywhere; the transcript cache keeps the work. Used when no write-through
// is requested.
func FetchOnly(ctx context.Context, ext Extractor, days int) (*FetchSummary, error) {
	started := time.Now()

	items, err := ext.ListItems(ctx, days)
	if err != nil {
		return nil, err
	}

	var sum FetchSummary
	var firstErr string
	for _, item := range items {
		if err := syncOne(ctx, ext, nil, item); err != nil {
			sum.Failed++
			engine.IncrSyncItemsFailed()
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		engine.IncrSyncItemsWritten()
		if item.Type == loom.ItemMeeting {
			sum.Meetings++
		} else {
			sum.Clips++
		}
	}

	rec := session.ExecutionRecord{
		StartedAt:   started,
		CompletedAt: time.Now(),
		Success:     sum.Clips+sum.Meetings > 0 || len(items) == 0,
		Clips:       sum.Clips,
		Meetings:    sum.Meetings,
		Error:       firstErr,
	}
	if err := ext.RecordExecution(ctx, rec); err != nil {
		slog.Warn("execution record failed", slog.Any("error", err))
	}
	return &sum, nil
}

// Start creates a sync job and runs it in the background. The returned job
// is in the queued state; poll GetJob for progress. A nil writer makes the
// run fetch-only: transcripts are extracted and cached but nothing is
// written out.
func Start(ctx context.Context, userKey string, ext Extractor, writer PageWriter, days int) (*Job, error) {
	job, err := createJob(ctx, userKey)
	if err != nil {
		return nil, err
	}
	engine.IncrSyncJobsStarted()

	// The run outlives the triggering request.
	go run(context.Background(), job, ext, writer, days)

	return job, nil
}

func run(ctx context.Context, job *Job, ext Extractor, writer PageWriter, days int) {
	started := time.Now()
	log := slog.With(slog.String("job_id", job.JobID), slog.String("key", job.UserKey))

	items, err := ext.ListItems(ctx, days)
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		if uerr := updateJob(ctx, job); uerr != nil {
			log.Error("job update failed", slog.Any("error", uerr))
		}
		recordRun(ctx, ext, started, job, 0, 0)
		log.Warn("sync failed at discovery", slog.Any("error", err))
		return
	}

	job.Status = StatusRunning
	job.Total = len(items)
	if err := updateJob(ctx, job); err != nil {
		log.Error("job update failed", slog.Any("error", err))
	}
	log.Info("sync started", slog.Int("items", len(items)), slog.Bool("write_through", writer != nil))

	var clips, meetings int
	var firstErr string
	for _, item := range items {
		// One slow or broken recording never sinks the rest of the run.
		err := syncOne(ctx, ext, writer, item)
		if err != nil {
			job.Failed++
			engine.IncrSyncItemsFailed()
			if firstErr == "" {
				firstErr = err.Error()
			}
			log.Warn("item failed", slog.String("item", item.ID), slog.Any("error", err))
		} else {
			job.Written++
			engine.IncrSyncItemsWritten()
			if item.Type == loom.ItemMeeting {
				meetings++
			} else {
				clips++
			}
		}
		if err := updateJob(ctx, job); err != nil {
			log.Error("job update failed", slog.Any("error", err))
		}
	}

	if job.Written > 0 || job.Total == 0 {
		job.Status = StatusCompleted
	} else {
		job.Status = StatusFailed
		job.Error = firstErr
	}
	if err := updateJob(ctx, job); err != nil {
		log.Error("job update failed", slog.Any("error", err))
	}
	recordRun(ctx, ext, started, job, clips, meetings)
	log.Info("sync finished",
		slog.String("status", job.Status),
		slog.Int("written", job.Written),
		slog.Int("failed", job.Failed),
		slog.Duration("took", time.Since(started)))
}

func syncOne(ctx context.Context, ext Extractor, writer PageWriter, item loom.Item) error {
	itemCtx, cancel := context.WithTimeout(ctx, 2*engine.Cfg.NavTimeout)
	defer cancel()

	res, err := ext.ExtractItem(itemCtx, item)
	if err != nil {
		return err
	}
	if writer == nil {
		return nil
	}
	return writer.WriteTranscript(itemCtx, item, res)
}

func recordRun(ctx context.Context, ext Extractor, started time.Time, job *Job, clips, meetings int) {
	rec := session.ExecutionRecord{
		StartedAt:   started,
		CompletedAt: time.Now(),
		Success:     job.Status == StatusCompleted,
		Clips:       clips,
		Meetings:    meetings,
		Error:       job.Error,
	}
	if err := ext.RecordExecution(ctx, rec); err != nil {
		slog.Warn("execution record failed", slog.String("key", job.UserKey), slog.Any("error", err))
	}
}
