// Package api provides the JSON REST API server for wikidex.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and dependency-free.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health: returns {"status":"ok"}
//   - GET /ready: verifies database connectivity
//
// Retrieval:
//   - GET /api/v1/search: embed the query, search the vector index and
//     return ranked chunks with a routing hint. Query parameters: q
//     (required), page_type, game_mode, hint (simple|deep), top-level
//     filters are conjunctive.
//
// Stats:
//   - GET /api/v1/stats: index contents (pages, chunks, embeddings,
//     pages by type)
//
// # Error Handling
//
// Errors use a flat JSON body:
//
//	{"error": "<code>", "message": "<human readable>"}
//
// Retrieval is read-only, so every endpoint is a GET and the API carries
// no session or CSRF machinery.
package api
