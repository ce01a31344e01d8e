package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/advocadabra/scr/internal/artifact"
	"github.com/advocadabra/scr/internal/config"
	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/engine"
	"github.com/advocadabra/scr/internal/retrieval"
)

// loadConfig reads the configuration and installs the logger it asks for.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func artifactNames(cfg config.Config) corpus.Paths {
	return corpus.Paths{
		Embeddings: cfg.Artifacts.Embeddings,
		Metadata:   cfg.Artifacts.Metadata,
		Index:      cfg.Artifacts.Index,
		Dataset:    cfg.Artifacts.Dataset,
	}
}

func newFetcher(cfg config.Config) *artifact.Fetcher {
	return artifact.NewFetcher(artifact.S3Config{
		Region:    cfg.AWS.Region,
		AccessKey: cfg.AWS.AccessKeyID,
		SecretKey: cfg.AWS.SecretAccessKey,
		Endpoint:  cfg.AWS.Endpoint,
	}, cfg.Artifacts.CacheDir)
}

// writablePaths resolves where commands that produce artifacts write them.
// dir overrides the configured artifacts directory and must be local.
func writablePaths(cfg config.Config, dir string) (corpus.Paths, error) {
	if dir == "" {
		dir = cfg.Artifacts.Dir
	}
	loc, err := artifact.ParseLocation(dir)
	if err != nil {
		return corpus.Paths{}, err
	}
	if loc.Remote() {
		return corpus.Paths{}, fmt.Errorf("artifacts are written locally; pass --dir (and --publish %s to upload)", loc)
	}
	if err := os.MkdirAll(loc.Dir, 0o755); err != nil {
		return corpus.Paths{}, fmt.Errorf("creating artifacts directory: %w", err)
	}
	return artifactNames(cfg).In(loc.Dir), nil
}

// newEngine builds the configured encoder and, for a local Ollama, makes
// sure the embedding model is present.
func newEngine(ctx context.Context, cfg config.Config) (engine.Engine, error) {
	if err := cfg.Encoder.Validate(); err != nil {
		return nil, err
	}
	eng, err := engine.Detect(ctx, engine.Config{
		Provider:  cfg.Encoder.Provider,
		Model:     cfg.Encoder.Model,
		BaseURL:   cfg.Encoder.BaseURL,
		APIKey:    cfg.Encoder.APIKey(),
		Dimension: cfg.Encoder.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	if m, ok := eng.(engine.ModelManager); ok {
		if err := engine.EnsureReady(ctx, m, cfg.Encoder.Model, os.Stderr); err != nil {
			engine.Close(eng)
			return nil, err
		}
	}
	return eng, nil
}

// openRetriever fetches the artifacts and loads them behind the configured
// encoder.
func openRetriever(ctx context.Context, cfg config.Config) (*retrieval.Retriever, error) {
	paths, err := newFetcher(cfg).Fetch(ctx, cfg.Artifacts.Dir, artifactNames(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w (run `scr bootstrap` or `scr build` first)", err)
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	r, err := retrieval.Open(ctx, retrieval.OpenOptions{
		Paths:  paths,
		Engine: eng,
		Model:  cfg.Encoder.Model,
		Options: retrieval.Options{
			OverfetchFactor: cfg.Retrieval.OverfetchFactor,
			MinFetch:        cfg.Retrieval.MinFetch,
		},
	})
	if err != nil {
		engine.Close(eng)
		return nil, err
	}

	st := r.Stats()
	slog.Debug("retriever ready", "rows", st.Rows, "cases", st.Cases, "encoder", st.Encoder)
	return r, nil
}
