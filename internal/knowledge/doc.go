// Package knowledge is the storage layer for the wiki index.
//
// It manages three kinds of rows over PostgreSQL + pgvector:
//
//   - pages: wiki pages keyed by the wiki's own page id, with a SHA-256
//     content hash used for no-op detection on re-ingestion
//   - chunks: the retrieval units, replaced wholesale whenever their page's
//     content changes
//   - embeddings: one 768-dimensional vector per chunk, keyed by chunk id
//
// # Write Path
//
//	Page + Chunks
//	     |
//	     v
//	SavePage (content hash check; unchanged pages are a no-op)
//	     |
//	     v
//	ReplacePage (upsert page, delete + insert chunks, one transaction)
//	     |
//	     v
//	SaveEmbeddings (dimension-checked upsert by chunk id)
//
// Deleting chunks cascades to their embeddings, so a changed page can never
// serve vectors computed from its previous text. The gap between chunk
// insertion and embedding backfill is visible via PendingChunks.
//
// # Search
//
// Search takes a pre-computed query vector and runs cosine similarity via
// pgvector's <=> operator, with conjunctive metadata filters (page type,
// game mode) applied before ranking:
//
//	results, err := store.Search(ctx, queryVec,
//	    knowledge.WithTopK(8),
//	    knowledge.WithPageType(knowledge.PageTypeQuest))
//
// Results are ordered by similarity descending; ties break on chunk id so
// identical inputs always produce identical orderings. Embedding the query
// text is the caller's concern (see internal/retrieval).
//
// # Structure
//
// Store depends on the Querier interface; Queries is its pgx-backed
// implementation. Tests substitute a mock Querier, and integration tests run
// Queries against a real pgvector container.
package knowledge
