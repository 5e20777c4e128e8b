// Package llm is the boundary between the scheduler and a model runtime.
//
// A Model is not safe for concurrent generation. Callers that share one
// across goroutines must serialize every call themselves; the scheduler
// does this by owning the Model on a single goroutine.
package llm

import (
	"context"
	"math/rand"

	"llmserve/internal/snapshot"
)

// Loader creates a Model from a file on disk.
type Loader interface {
	// Load reads the model at path. progress may be nil.
	Load(path string, params LoadParams, progress ProgressFunc) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string, params LoadParams, progress ProgressFunc) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(path string, params LoadParams, progress ProgressFunc) (Model, error) {
	return f(path, params, progress)
}

// Model is a loaded model able to create sessions and run generation.
type Model interface {
	Info() Info
	// StartSession creates an empty session bound to this model.
	StartSession(mem MemoryConfig) (Session, error)
	// RestoreSession rebuilds a session from a snapshot. It fails with
	// ErrIncompatibleSnapshot when the snapshot was taken from another model.
	RestoreSession(snap *snapshot.Snapshot) (Session, error)
	// Feed evaluates prompt into sess without sampling.
	Feed(ctx context.Context, sess Session, prompt string, batch int) error
	// Generate feeds prompt into sess and samples tokens, calling onToken for
	// each one in order. It stops early if onToken returns an error.
	Generate(ctx context.Context, sess Session, params SamplingParams, rng *rand.Rand, prompt string, onToken TokenFunc) error
	// Close releases the model. Sessions must not be used afterwards.
	Close() error
}

// Session is mutable generation state: token history, position and
// key/value memory. It must not be used by two generation calls at once.
type Session interface {
	Snapshot() (*snapshot.Snapshot, error)
	Close() error
}

// TokenFunc receives generated token text.
type TokenFunc func(text string) error

// Info describes a loaded model.
type Info struct {
	Name    string
	Path    string
	Backend string
	// Fingerprint identifies shapes and vocabulary; snapshots carry it.
	Fingerprint string
	ContextSize int
	VocabSize   int
}
