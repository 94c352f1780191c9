package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// FakeEmbedder is a deterministic knowledge.Embedder for unit tests.
// The vector for a given text is always the same, derived from its SHA-256,
// so tests can assert stable behavior without network access.
type FakeEmbedder struct {
	// Dimension of produced vectors. Zero means knowledge.VectorDimension.
	Dimension int
	// Err, when set, is returned from every call.
	Err error

	mu    sync.Mutex
	calls int
	texts []string
}

// EmbedTexts returns one deterministic vector per input text.
func (f *FakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.texts = append(f.texts, texts...)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	dim := f.Dimension
	if dim == 0 {
		dim = knowledge.VectorDimension
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = deterministicVector(text, dim)
	}
	return vectors, nil
}

// Calls returns how many times EmbedTexts was invoked.
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Texts returns every text embedded so far, in call order.
func (f *FakeEmbedder) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

// deterministicVector expands a text's SHA-256 into a dim-length vector.
func deterministicVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		word := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		vec[i] = float32(word%1000)/1000.0 - 0.5
	}
	return vec
}

// EmbedderSetup contains all resources needed for embedder-based tests.
type EmbedderSetup struct {
	Embedder ai.Embedder
	Genkit   *genkit.Genkit
	Logger   *slog.Logger
}

// SetupEmbedder creates a Google AI embedder with logger for integration tests.
//
// Requirements:
//   - GEMINI_API_KEY environment variable must be set
//   - Skips test if API key is not available
//
// Example:
//
//	func TestRetrieval(t *testing.T) {
//	    setup := testutil.SetupEmbedder(t)
//	    embedder := knowledge.NewGenkitEmbedder(setup.Embedder)
//	    // ...
//	}
func SetupEmbedder(t *testing.T) *EmbedderSetup {
	t.Helper()

	// Check for required API key
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set - skipping test requiring embedder")
	}

	ctx := context.Background()

	// Initialize Genkit with Google AI plugin
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	// Create embedder
	embedder := googlegenai.GoogleAIEmbedder(g, "gemini-embedding-001")

	// Create quiet logger for tests (only warn and above)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return &EmbedderSetup{
		Embedder: embedder,
		Genkit:   g,
		Logger:   logger,
	}
}
