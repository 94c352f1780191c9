package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrJobInProgress indicates a job of the same kind is already running.
	ErrJobInProgress = errors.New("ingestion job already in progress")
)

// DB is the subset of pgxpool.Pool the query layer needs.
// *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Querier defines the database operations the Store depends on.
// Following Go convention the interface lives with its consumer; Queries is
// the pgx-backed implementation and tests substitute a mock.
type Querier interface {
	// GetPageHash returns the stored content hash for a page, or ErrNotFound.
	GetPageHash(ctx context.Context, pageID int64) (string, error)

	// ReplacePage upserts the page row and replaces its chunks in one
	// transaction. Returned chunks carry their generated ids.
	ReplacePage(ctx context.Context, page Page, chunks []Chunk) ([]Chunk, error)

	// DeletePage removes a page; chunks and embeddings cascade.
	DeletePage(ctx context.Context, pageID int64) error

	// ChunksMissingEmbeddings lists chunks that have no embedding row yet.
	ChunksMissingEmbeddings(ctx context.Context, limit int) ([]Chunk, error)

	// ListChunks pages through all chunks ordered by id, for re-embedding.
	ListChunks(ctx context.Context, afterID uuid.UUID, limit int) ([]Chunk, error)

	// UpsertEmbeddings writes embeddings in one transaction, replacing any
	// existing row per chunk.
	UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error

	// SearchChunks runs a cosine similarity search with conjunctive filters.
	SearchChunks(ctx context.Context, vec pgvector.Vector, pageType, gameMode string, limit int) ([]SearchResult, error)

	// CountStats returns index-wide counts.
	CountStats(ctx context.Context) (Stats, error)

	// CreateJob inserts an in_progress job, or ErrJobInProgress if one of
	// the same kind is already running.
	CreateJob(ctx context.Context, kind string) (Job, error)

	// ActiveJob returns the in_progress job of the given kind, or ErrNotFound.
	ActiveJob(ctx context.Context, kind string) (Job, error)

	// LatestJob returns the most recently started job of the given kind.
	LatestJob(ctx context.Context, kind string) (Job, error)

	// AdvanceJob applies a progress delta and new cursor to a running job.
	AdvanceJob(ctx context.Context, id uuid.UUID, p JobProgress) error

	// FinishJob marks a job completed or failed.
	FinishJob(ctx context.Context, id uuid.UUID, status, lastError string) error
}

// Queries is the pgx implementation of Querier.
type Queries struct {
	db DB
}

// NewQueries creates the pgx-backed query layer.
func NewQueries(db DB) *Queries {
	return &Queries{db: db}
}

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

func (q *Queries) GetPageHash(ctx context.Context, pageID int64) (string, error) {
	var hash string
	err := q.db.QueryRow(ctx,
		`SELECT content_hash FROM pages WHERE page_id = $1`, pageID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get page hash: %w", err)
	}
	return hash, nil
}

func (q *Queries) ReplacePage(ctx context.Context, page Page, chunks []Chunk) ([]Chunk, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin replace page: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO pages (page_id, title, page_type, content, url, content_hash, revision_id, categories, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (page_id) DO UPDATE SET
			title = EXCLUDED.title,
			page_type = EXCLUDED.page_type,
			content = EXCLUDED.content,
			url = EXCLUDED.url,
			content_hash = EXCLUDED.content_hash,
			revision_id = EXCLUDED.revision_id,
			categories = EXCLUDED.categories,
			fetched_at = now(),
			updated_at = now()`,
		page.PageID, page.Title, page.PageType, page.Content, page.URL, page.ContentHash, page.RevisionID, page.Categories)
	if err != nil {
		return nil, fmt.Errorf("upsert page %d: %w", page.PageID, err)
	}

	// Old chunks go first; the embeddings cascade with them so a changed
	// page never serves stale vectors.
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE page_id = $1`, page.PageID); err != nil {
		return nil, fmt.Errorf("delete chunks for page %d: %w", page.PageID, err)
	}

	inserted := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO chunks (page_id, chunk_index, content, section, page_title, page_type, game_modes, token_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			c.PageID, c.Index, c.Content, c.Section, c.PageTitle, c.PageType, c.GameModes, c.TokenCount,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d of page %d: %w", c.Index, page.PageID, err)
		}
		c.ID = id
		inserted = append(inserted, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace page %d: %w", page.PageID, err)
	}
	return inserted, nil
}

func (q *Queries) DeletePage(ctx context.Context, pageID int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM pages WHERE page_id = $1`, pageID)
	if err != nil {
		return fmt.Errorf("delete page %d: %w", pageID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const chunkColumns = `c.id, c.page_id, c.chunk_index, c.content, c.section, c.page_title, c.page_type, c.game_modes, c.token_count, c.created_at`

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	defer rows.Close()
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.PageID, &c.Index, &c.Content, &c.Section,
			&c.PageTitle, &c.PageType, &c.GameModes, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

func (q *Queries) ChunksMissingEmbeddings(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE e.chunk_id IS NULL
		ORDER BY c.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks missing embeddings: %w", err)
	}
	return scanChunks(rows)
}

func (q *Queries) ListChunks(ctx context.Context, afterID uuid.UUID, limit int) ([]Chunk, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c
		WHERE c.id > $1
		ORDER BY c.id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return scanChunks(rows)
}

func (q *Queries) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert embeddings: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range embeddings {
		vec := pgvector.NewVector(e.Vector)
		_, err := tx.Exec(ctx, `
			INSERT INTO embeddings (chunk_id, embedding, model, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (chunk_id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				model = EXCLUDED.model,
				created_at = now()`,
			e.ChunkID, vec, e.Model)
		if err != nil {
			return fmt.Errorf("upsert embedding for chunk %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert embeddings: %w", err)
	}
	return nil
}

func (q *Queries) SearchChunks(ctx context.Context, vec pgvector.Vector, pageType, gameMode string, limit int) ([]SearchResult, error) {
	// Cosine similarity from pgvector's cosine distance operator. Filters
	// apply before ranking so the limit is taken over eligible chunks only.
	// Ties break on chunk id for deterministic ordering.
	rows, err := q.db.Query(ctx, `
		SELECT `+chunkColumns+`, p.url, 1 - (e.embedding <=> $1) AS similarity
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN pages p ON p.page_id = c.page_id
		WHERE ($2 = '' OR c.page_type = $2)
		  AND ($3 = '' OR $3 = ANY(c.game_modes))
		ORDER BY similarity DESC, c.id ASC
		LIMIT $4`,
		vec, pageType, gameMode, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.PageID, &r.Index, &r.Content, &r.Section,
			&r.PageTitle, &r.PageType, &r.GameModes, &r.TokenCount, &r.CreatedAt,
			&r.PageURL, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

func (q *Queries) CountStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM pages),
			(SELECT count(*) FROM chunks),
			(SELECT count(*) FROM embeddings)`,
	).Scan(&s.Pages, &s.Chunks, &s.Embeddings)
	if err != nil {
		return Stats{}, fmt.Errorf("count stats: %w", err)
	}

	rows, err := q.db.Query(ctx,
		`SELECT page_type, count(*) FROM pages GROUP BY page_type`)
	if err != nil {
		return Stats{}, fmt.Errorf("count pages by type: %w", err)
	}
	defer rows.Close()

	s.PagesByType = make(map[string]int64)
	for rows.Next() {
		var pageType string
		var count int64
		if err := rows.Scan(&pageType, &count); err != nil {
			return Stats{}, fmt.Errorf("scan page type count: %w", err)
		}
		s.PagesByType[pageType] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate page type counts: %w", err)
	}
	return s, nil
}

const jobColumns = `id, job_kind, status, resume_cursor, pages_processed, pages_skipped, pages_failed, chunks_written, last_error, started_at, updated_at, COALESCE(finished_at, 'epoch'::timestamptz)`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Kind, &j.Status, &j.Cursor,
		&j.PagesProcessed, &j.PagesSkipped, &j.PagesFailed, &j.ChunksWritten,
		&j.LastError, &j.StartedAt, &j.UpdatedAt, &j.FinishedAt)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func (q *Queries) CreateJob(ctx context.Context, kind string) (Job, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (job_kind)
		VALUES ($1)
		RETURNING `+jobColumns, kind)

	job, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Job{}, fmt.Errorf("%w: kind %q", ErrJobInProgress, kind)
		}
		return Job{}, fmt.Errorf("create %s job: %w", kind, err)
	}
	return job, nil
}

func (q *Queries) ActiveJob(ctx context.Context, kind string) (Job, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM ingestion_jobs
		WHERE job_kind = $1 AND status = 'in_progress'`, kind)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get active %s job: %w", kind, err)
	}
	return job, nil
}

func (q *Queries) LatestJob(ctx context.Context, kind string) (Job, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM ingestion_jobs
		WHERE job_kind = $1
		ORDER BY started_at DESC
		LIMIT 1`, kind)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get latest %s job: %w", kind, err)
	}
	return job, nil
}

func (q *Queries) AdvanceJob(ctx context.Context, id uuid.UUID, p JobProgress) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE ingestion_jobs SET
			resume_cursor = $2,
			pages_processed = pages_processed + $3,
			pages_skipped = pages_skipped + $4,
			pages_failed = pages_failed + $5,
			chunks_written = chunks_written + $6,
			updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`,
		id, p.Cursor, p.PagesProcessed, p.PagesSkipped, p.PagesFailed, p.ChunksWritten)
	if err != nil {
		return fmt.Errorf("advance job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s not in progress", ErrNotFound, id)
	}
	return nil
}

func (q *Queries) FinishJob(ctx context.Context, id uuid.UUID, status, lastError string) error {
	if status != JobStatusCompleted && status != JobStatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	tag, err := q.db.Exec(ctx, `
		UPDATE ingestion_jobs SET
			status = $2,
			last_error = $3,
			updated_at = now(),
			finished_at = now()
		WHERE id = $1 AND status = 'in_progress'`,
		id, status, lastError)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// The job was not in progress. Finishing is idempotent: a retried
		// shutdown that re-marks the same terminal status is a no-op, and
		// only a genuinely missing job or a conflicting terminal status
		// is an error.
		var current string
		err := q.db.QueryRow(ctx,
			`SELECT status FROM ingestion_jobs WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: job %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("finish job %s: %w", id, err)
		}
		if current == status {
			return nil
		}
		return fmt.Errorf("job %s is already %s, cannot mark it %s", id, current, status)
	}
	return nil
}
