// Package ingest crawls wiki pages into the knowledge store.
//
// A Pipeline enumerates pages through a Source, fetches and chunks each
// one, and saves it via knowledge.Store; the Indexer then embeds new
// chunks in batches. A Tracker persists the crawl cursor and progress
// counters after every batch, making runs resumable and safe to repeat:
// unchanged pages are detected by content hash and cost nothing.
package ingest
