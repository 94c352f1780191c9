package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// ErrNoCompletedRun is returned by SinceLastRun when no ingest has ever
// finished, so there is no timestamp to diff recent changes against.
var ErrNoCompletedRun = errors.New("no completed ingest run")

// Tracker records crawl progress in ingestion_jobs so an interrupted run
// can be resumed from its last persisted cursor. The database enforces at
// most one in-progress job per kind; a second concurrent run of the same
// kind fails with knowledge.ErrJobInProgress.
type Tracker struct {
	queries knowledge.Querier
	logger  *slog.Logger
}

// NewTracker creates a new Tracker.
func NewTracker(querier knowledge.Querier, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		queries: querier,
		logger:  logger,
	}
}

// Begin starts a job of the given kind. With resume set, an existing
// in-progress job of that kind is returned instead of creating a new one;
// the second return value reports whether that happened.
func (t *Tracker) Begin(ctx context.Context, kind string, resume bool) (knowledge.Job, bool, error) {
	if resume {
		job, err := t.queries.ActiveJob(ctx, kind)
		switch {
		case err == nil:
			t.logger.Info("resuming job",
				"job_id", job.ID,
				"kind", job.Kind,
				"cursor", job.Cursor,
				"pages_processed", job.PagesProcessed)
			return job, true, nil
		case errors.Is(err, knowledge.ErrNotFound):
			// Nothing to resume, fall through to a fresh job.
		default:
			return knowledge.Job{}, false, err
		}
	}

	job, err := t.queries.CreateJob(ctx, kind)
	if err != nil {
		return knowledge.Job{}, false, err
	}
	t.logger.Info("job started", "job_id", job.ID, "kind", kind)
	return job, false, nil
}

// Advance persists a progress delta and the new resume cursor.
func (t *Tracker) Advance(ctx context.Context, jobID uuid.UUID, p knowledge.JobProgress) error {
	if err := t.queries.AdvanceJob(ctx, jobID, p); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// Complete marks the job finished.
func (t *Tracker) Complete(ctx context.Context, jobID uuid.UUID) error {
	if err := t.queries.FinishJob(ctx, jobID, knowledge.JobStatusCompleted, ""); err != nil {
		return err
	}
	t.logger.Info("job completed", "job_id", jobID)
	return nil
}

// Fail marks the job failed, recording the cause.
func (t *Tracker) Fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := t.queries.FinishJob(ctx, jobID, knowledge.JobStatusFailed, msg); err != nil {
		return err
	}
	t.logger.Warn("job failed", "job_id", jobID, "error", msg)
	return nil
}

// SinceLastRun returns the start time of the most recent completed job of
// any kind. Incremental updates fetch changes from this point; using the
// start rather than the finish time means pages edited mid-run are picked
// up again rather than missed.
func (t *Tracker) SinceLastRun(ctx context.Context) (time.Time, error) {
	var latest time.Time
	for _, kind := range []string{knowledge.JobKindFull, knowledge.JobKindIncremental} {
		job, err := t.queries.LatestJob(ctx, kind)
		if errors.Is(err, knowledge.ErrNotFound) {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		if job.Status == knowledge.JobStatusCompleted && job.StartedAt.After(latest) {
			latest = job.StartedAt
		}
	}
	if latest.IsZero() {
		return time.Time{}, ErrNoCompletedRun
	}
	return latest, nil
}
