package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that a locally hosted backend is reachable and that
// the embedding model is available, pulling it if needed with progress
// written to w.
func EnsureReady(ctx context.Context, m ModelManager, embedModel string, w io.Writer) error {
	if !m.IsRunning(ctx) {
		return fmt.Errorf("embedding backend is not running; start it with: ollama serve")
	}
	if embedModel == "" {
		return nil
	}

	if m.HasModel(ctx, embedModel) {
		fmt.Fprintf(w, "model %s: ready\n", embedModel)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", embedModel)
	err := m.PullModel(ctx, embedModel, func(p PullProgress) {
		if p.Total > 0 {
			pct := float64(p.Completed) / float64(p.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", embedModel, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", embedModel)
	return nil
}
