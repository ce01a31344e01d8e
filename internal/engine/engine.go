package engine

import "context"

// Engine produces embedding vectors for text. Each backend (Ollama, an
// OpenAI-compatible API, Gemini, or the offline hash encoder) implements it,
// so retrieval and index builds never depend on a concrete client.
type Engine interface {
	// Embed returns the embedding vector for text using model. Backends
	// with a fixed model ignore the argument.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// Name identifies the backend in logs and build records.
	Name() string
}

// ModelManager is implemented by backends that host models locally and can
// report or download them.
type ModelManager interface {
	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Closer is implemented by backends that hold a client needing release.
type Closer interface {
	Close() error
}

// Close releases e if it holds resources.
func Close(e Engine) error {
	if c, ok := e.(Closer); ok {
		return c.Close()
	}
	return nil
}
