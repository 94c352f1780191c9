package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ErrDimensionMismatch indicates a vector of the wrong length reached the
// write or search path.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrInvalidTopK indicates a search asked for a non-positive result count.
var ErrInvalidTopK = errors.New("top_k must be positive")

// SaveResult reports what SavePage did with a page.
type SaveResult struct {
	// Changed is false when the content hash matched and nothing was written.
	Changed bool
	// Chunks are the freshly inserted chunks with ids, empty when unchanged.
	Chunks []Chunk
}

// Store manages pages, chunks and embeddings over PostgreSQL + pgvector.
// It enforces the invariants the query layer cannot: content-hash no-op
// detection on writes and vector dimension checks on every embedding.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// NewStore creates a new Store.
//
// Example (production):
//
//	store := knowledge.NewStore(knowledge.NewQueries(pool), logger)
//
// Example (testing with mock):
//
//	store := knowledge.NewStore(mockQuerier, log.NewNop())
func NewStore(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries: querier,
		logger:  logger,
	}
}

// SavePage stores a page and its chunks. If the page's content hash matches
// the stored one the call is a no-op and existing chunks and embeddings are
// preserved, so re-running an ingest over unchanged pages costs no embedding
// work. A changed hash replaces the page's chunks atomically; their
// embeddings are gone until the indexer backfills them.
func (s *Store) SavePage(ctx context.Context, page Page, chunks []Chunk) (SaveResult, error) {
	if page.ContentHash == "" {
		return SaveResult{}, fmt.Errorf("page %d has empty content hash", page.PageID)
	}

	stored, err := s.queries.GetPageHash(ctx, page.PageID)
	switch {
	case err == nil:
		if stored == page.ContentHash {
			s.logger.Debug("page unchanged", "page_id", page.PageID, "title", page.Title)
			return SaveResult{Changed: false}, nil
		}
	case errors.Is(err, ErrNotFound):
		// New page.
	default:
		return SaveResult{}, err
	}

	inserted, err := s.queries.ReplacePage(ctx, page, chunks)
	if err != nil {
		return SaveResult{}, err
	}

	s.logger.Debug("page stored",
		"page_id", page.PageID,
		"title", page.Title,
		"chunks", len(inserted))
	return SaveResult{Changed: true, Chunks: inserted}, nil
}

// DeletePage removes a page with its chunks and embeddings.
func (s *Store) DeletePage(ctx context.Context, pageID int64) error {
	if err := s.queries.DeletePage(ctx, pageID); err != nil {
		return err
	}
	s.logger.Debug("page deleted", "page_id", pageID)
	return nil
}

// PendingChunks returns up to limit chunks that have no embedding yet.
func (s *Store) PendingChunks(ctx context.Context, limit int) ([]Chunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return s.queries.ChunksMissingEmbeddings(ctx, limit)
}

// WalkChunks visits every chunk in id order in batches of batchSize,
// calling fn for each batch. Used by full re-embeds.
func (s *Store) WalkChunks(ctx context.Context, batchSize int, fn func([]Chunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	var after uuid.UUID
	for {
		chunks, err := s.queries.ListChunks(ctx, after, batchSize)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := fn(chunks); err != nil {
			return err
		}
		after = chunks[len(chunks)-1].ID
	}
}

// SaveEmbeddings writes chunk embeddings, replacing any existing vector per
// chunk. Every vector must be exactly VectorDimension long; a wrong-length
// vector fails the whole batch before anything is written.
func (s *Store) SaveEmbeddings(ctx context.Context, embeddings []Embedding) error {
	for _, e := range embeddings {
		if len(e.Vector) != VectorDimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), VectorDimension)
		}
	}

	if err := s.queries.UpsertEmbeddings(ctx, embeddings); err != nil {
		return err
	}

	s.logger.Debug("embeddings stored", "count", len(embeddings))
	return nil
}

// Search performs a cosine similarity search over indexed chunks.
// Filters are conjunctive and applied before ranking. Results come back
// ordered by similarity descending with chunk id as the tiebreaker.
// A 10-second timeout guards the query; override with WithTimeout.
//
// Example:
//
//	results, err := store.Search(ctx, queryVec,
//	    knowledge.WithTopK(8),
//	    knowledge.WithPageType(knowledge.PageTypeQuest),
//	    knowledge.WithGameMode(knowledge.ModeIronman))
func (s *Store) Search(ctx context.Context, queryVec []float32, opts ...SearchOption) ([]SearchResult, error) {
	if len(queryVec) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			ErrDimensionMismatch, len(queryVec), VectorDimension)
	}

	cfg := buildSearchConfig(opts)
	if cfg.topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, cfg.topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	results, err := s.queries.SearchChunks(queryCtx, pgvector.NewVector(queryVec),
		cfg.pageType, cfg.gameMode, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, err
	}

	s.logger.Debug("search executed",
		"top_k", cfg.topK,
		"page_type", cfg.pageType,
		"game_mode", cfg.gameMode,
		"results", len(results))
	return results, nil
}

// Stats returns index-wide counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.queries.CountStats(ctx)
}
