package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/askbob-ai/wikidex/internal/chunker"
	"github.com/askbob-ai/wikidex/internal/knowledge"
	"github.com/askbob-ai/wikidex/internal/wiki"
)

// DefaultWorkers is the page worker count when none is configured.
const DefaultWorkers = 4

// Source is the slice of the wiki client the pipeline needs. Following Go
// convention the interface lives with its consumer; *wiki.Client is the
// production implementation.
type Source interface {
	ListPages(ctx context.Context, continueToken string) ([]wiki.PageRef, string, error)
	GetPage(ctx context.Context, pageID int64) (*wiki.Page, error)
	RecentChanges(ctx context.Context, since time.Time) ([]wiki.Change, error)
}

// Summary totals one ingest run.
type Summary struct {
	JobID          uuid.UUID
	Resumed        bool
	PagesProcessed int
	PagesSkipped   int
	PagesFailed    int
	ChunksWritten  int
}

// Pipeline crawls wiki pages into the knowledge store: enumerate, fetch,
// chunk, save, embed. Page fetches within a batch run on a worker pool;
// progress and the resume cursor are persisted after every batch, so a
// killed run restarts at its last batch instead of page one.
type Pipeline struct {
	source  Source
	store   *knowledge.Store
	indexer *Indexer
	tracker *Tracker
	workers int
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of concurrent page workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPipeline creates a new Pipeline.
func NewPipeline(source Source, store *knowledge.Store, indexer *Indexer, tracker *Tracker, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		source:  source,
		store:   store,
		indexer: indexer,
		tracker: tracker,
		workers: DefaultWorkers,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type pageOutcome struct {
	processed bool
	skipped   bool
	failed    bool
	chunks    int
}

// FullIngest crawls every wiki page. With resume set it continues an
// interrupted run from its persisted cursor. Cancellation leaves the job
// in progress so a later resume picks it up; any other fatal error marks
// the job failed.
func (p *Pipeline) FullIngest(ctx context.Context, resume bool) (Summary, error) {
	job, resumed, err := p.tracker.Begin(ctx, knowledge.JobKindFull, resume)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{JobID: job.ID, Resumed: resumed}

	cursor := ""
	if resumed {
		cursor = job.Cursor
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return summary, p.abort(ctx, job.ID, &summary, fmt.Errorf("create worker pool: %w", err))
	}
	defer pool.Release()

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("ingest interrupted, resume to continue",
				"job_id", job.ID, "cursor", cursor)
			return summary, err
		}

		refs, next, err := p.source.ListPages(ctx, cursor)
		if err != nil {
			return summary, p.abort(ctx, job.ID, &summary, fmt.Errorf("list pages: %w", err))
		}

		progress := p.processBatch(ctx, pool, refs)
		progress.Cursor = next
		if err := p.tracker.Advance(ctx, job.ID, progress); err != nil {
			return summary, p.abort(ctx, job.ID, &summary, err)
		}
		accumulate(&summary, progress)

		p.logger.Info("batch done",
			"job_id", job.ID,
			"pages", len(refs),
			"processed", summary.PagesProcessed,
			"skipped", summary.PagesSkipped,
			"failed", summary.PagesFailed)

		if next == "" {
			break
		}
		cursor = next
	}

	if err := p.tracker.Complete(ctx, job.ID); err != nil {
		return summary, err
	}
	return summary, nil
}

// IncrementalIngest re-fetches pages changed on the wiki since the last
// completed run. Pages the feed names but the API no longer serves are
// deleted from the store along with their chunks and embeddings.
func (p *Pipeline) IncrementalIngest(ctx context.Context) (Summary, error) {
	since, err := p.tracker.SinceLastRun(ctx)
	if err != nil {
		return Summary{}, err
	}

	job, _, err := p.tracker.Begin(ctx, knowledge.JobKindIncremental, false)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{JobID: job.ID}

	changes, err := p.source.RecentChanges(ctx, since)
	if err != nil {
		return summary, p.abort(ctx, job.ID, &summary, fmt.Errorf("recent changes since %s: %w", since.Format(time.RFC3339), err))
	}
	p.logger.Info("incremental update",
		"job_id", job.ID,
		"since", since.Format(time.RFC3339),
		"changed_pages", len(changes))

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return summary, p.abort(ctx, job.ID, &summary, fmt.Errorf("create worker pool: %w", err))
	}
	defer pool.Release()

	refs := make([]wiki.PageRef, len(changes))
	for i, ch := range changes {
		refs[i] = wiki.PageRef{PageID: ch.PageID, Title: ch.Title}
	}

	progress := p.processBatch(ctx, pool, refs)
	if err := p.tracker.Advance(ctx, job.ID, progress); err != nil {
		return summary, p.abort(ctx, job.ID, &summary, err)
	}
	accumulate(&summary, progress)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if err := p.tracker.Complete(ctx, job.ID); err != nil {
		return summary, err
	}
	return summary, nil
}

// processBatch fans refs out over the pool and gathers per-page outcomes.
// Cancellation stops submitting new pages; already-running workers finish.
func (p *Pipeline) processBatch(ctx context.Context, pool *ants.Pool, refs []wiki.PageRef) knowledge.JobProgress {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		progress knowledge.JobProgress
	)

	record := func(o pageOutcome) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case o.processed:
			progress.PagesProcessed++
			progress.ChunksWritten += o.chunks
		case o.skipped:
			progress.PagesSkipped++
		case o.failed:
			progress.PagesFailed++
		}
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			record(p.processPage(ctx, ref))
		})
		if err != nil {
			wg.Done()
			p.logger.Warn("worker submit failed", "page_id", ref.PageID, "error", err)
			record(pageOutcome{failed: true})
		}
	}
	wg.Wait()
	return progress
}

// processPage fetches, chunks and stores one page. Missing pages are
// deleted from the store and counted as skipped; transient fetch failures
// (the client has already retried) count as failed and the crawl moves on.
func (p *Pipeline) processPage(ctx context.Context, ref wiki.PageRef) pageOutcome {
	page, err := p.source.GetPage(ctx, ref.PageID)
	if errors.Is(err, wiki.ErrPageMissing) {
		if delErr := p.store.DeletePage(ctx, ref.PageID); delErr != nil {
			p.logger.Warn("delete missing page failed", "page_id", ref.PageID, "error", delErr)
			return pageOutcome{failed: true}
		}
		p.logger.Debug("page gone, removed", "page_id", ref.PageID, "title", ref.Title)
		return pageOutcome{skipped: true}
	}
	if err != nil {
		p.logger.Warn("page fetch failed", "page_id", ref.PageID, "title", ref.Title, "error", err)
		return pageOutcome{failed: true}
	}

	chunks := chunker.Split(chunker.Input{
		PageID:     page.PageID,
		Title:      page.Title,
		Content:    page.Content,
		PageType:   page.PageType,
		Categories: page.Categories,
	})

	now := time.Now().UTC()
	result, err := p.store.SavePage(ctx, knowledge.Page{
		PageID:      page.PageID,
		Title:       page.Title,
		PageType:    page.PageType,
		Content:     page.Content,
		URL:         page.URL,
		ContentHash: page.ContentHash,
		RevisionID:  page.RevisionID,
		Categories:  page.Categories,
		FetchedAt:   now,
		UpdatedAt:   now,
	}, chunks)
	if err != nil {
		p.logger.Warn("page store failed", "page_id", page.PageID, "title", page.Title, "error", err)
		return pageOutcome{failed: true}
	}
	if !result.Changed {
		return pageOutcome{skipped: true}
	}

	if len(result.Chunks) > 0 {
		if _, err := p.indexer.IndexChunks(ctx, result.Chunks); err != nil {
			// The page is stored; its chunks wait for the next backfill.
			p.logger.Warn("embedding failed, chunks left for backfill",
				"page_id", page.PageID, "title", page.Title, "error", err)
		}
	}
	return pageOutcome{processed: true, chunks: len(result.Chunks)}
}

// abort marks the job failed unless the run was cancelled, in which case
// the job stays in progress so it can be resumed.
func (p *Pipeline) abort(ctx context.Context, jobID uuid.UUID, summary *Summary, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	if err := p.tracker.Fail(context.WithoutCancel(ctx), jobID, cause); err != nil {
		p.logger.Warn("marking job failed", "job_id", jobID, "error", err)
	}
	return cause
}

func accumulate(s *Summary, p knowledge.JobProgress) {
	s.PagesProcessed += p.PagesProcessed
	s.PagesSkipped += p.PagesSkipped
	s.PagesFailed += p.PagesFailed
	s.ChunksWritten += p.ChunksWritten
}
