package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// DefaultEmbedBatchSize caps how many chunk texts go to the embedding API
// in one call when no batch size is configured.
const DefaultEmbedBatchSize = 100

// Indexer turns chunks into stored embeddings. An in-flight set keyed by
// chunk id guarantees at most one embedding attempt per chunk at a time,
// so a concurrent backfill and page ingest never double-embed a chunk.
//
// Indexer is safe for concurrent use by multiple goroutines.
type Indexer struct {
	store     *knowledge.Store
	embedder  knowledge.Embedder
	model     string
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewIndexer creates a new Indexer. batchSize limits chunks per embedding
// call; values below 1 fall back to DefaultEmbedBatchSize.
func NewIndexer(store *knowledge.Store, embedder knowledge.Embedder, model string, batchSize int, logger *slog.Logger) *Indexer {
	if batchSize < 1 {
		batchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:     store,
		embedder:  embedder,
		model:     model,
		batchSize: batchSize,
		logger:    logger,
		inflight:  make(map[uuid.UUID]struct{}),
	}
}

// claim marks chunks as in flight, returning only those not already claimed
// by another goroutine.
func (ix *Indexer) claim(chunks []knowledge.Chunk) []knowledge.Chunk {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	claimed := make([]knowledge.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, busy := ix.inflight[c.ID]; busy {
			continue
		}
		ix.inflight[c.ID] = struct{}{}
		claimed = append(claimed, c)
	}
	return claimed
}

func (ix *Indexer) release(chunks []knowledge.Chunk) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, c := range chunks {
		delete(ix.inflight, c.ID)
	}
}

// IndexChunks embeds the given chunks and stores their vectors, returning
// how many were written. Chunks another goroutine is already embedding are
// skipped. On an embedding or storage error the chunks of the failed batch
// and everything after it stay unembedded; a later Backfill picks them up.
func (ix *Indexer) IndexChunks(ctx context.Context, chunks []knowledge.Chunk) (int, error) {
	chunks = ix.claim(chunks)
	defer ix.release(chunks)

	written := 0
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := ix.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed batch of %d chunks: %w", len(batch), err)
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		embeddings := make([]knowledge.Embedding, len(batch))
		for i, c := range batch {
			embeddings[i] = knowledge.Embedding{
				ChunkID: c.ID,
				Vector:  vectors[i],
				Model:   ix.model,
			}
		}

		if err := ix.store.SaveEmbeddings(ctx, embeddings); err != nil {
			return written, err
		}
		written += len(batch)
	}
	return written, nil
}

// Backfill embeds every chunk that has no embedding yet, in batches, until
// none remain. Called after interrupted ingests and per-page embedding
// failures to restore the one-embedding-per-chunk state.
func (ix *Indexer) Backfill(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		pending, err := ix.store.PendingChunks(ctx, ix.batchSize)
		if err != nil {
			return total, err
		}
		if len(pending) == 0 {
			return total, nil
		}

		n, err := ix.IndexChunks(ctx, pending)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			// Everything pending is claimed elsewhere; let that owner finish.
			return total, nil
		}
		ix.logger.Info("backfilled embeddings", "batch", n, "total", total)
	}
}

// ReembedAll regenerates the embedding of every chunk, replacing stored
// vectors in place. Used after switching embedding models.
func (ix *Indexer) ReembedAll(ctx context.Context) (int, error) {
	total := 0
	err := ix.store.WalkChunks(ctx, ix.batchSize, func(chunks []knowledge.Chunk) error {
		n, err := ix.IndexChunks(ctx, chunks)
		total += n
		if err != nil {
			return err
		}
		ix.logger.Info("re-embedded chunks", "batch", n, "total", total)
		return nil
	})
	return total, err
}
