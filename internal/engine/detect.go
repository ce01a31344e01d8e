package engine

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by Detect.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
)

// DefaultOllamaURL is used when an Ollama provider has no base URL.
const DefaultOllamaURL = "http://localhost:11434"

// Config holds parameters for backend selection.
type Config struct {
	Provider string
	Model    string
	// BaseURL overrides the provider endpoint. Empty uses the provider default.
	BaseURL   string
	APIKey    string
	Dimension int
}

// Detect returns the Engine named by cfg.Provider. An empty provider selects
// Ollama.
func Detect(ctx context.Context, cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaURL
		}
		return NewOllamaEngine(cfg.BaseURL), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key (set SCR_OPENAI_API_KEY)")
		}
		return NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension), nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key (set SCR_GEMINI_API_KEY)")
		}
		return NewGeminiEngine(ctx, cfg.APIKey, cfg.Model)
	case ProviderHash:
		if cfg.Dimension <= 0 {
			return nil, fmt.Errorf("hash provider requires a positive dimension, got %d", cfg.Dimension)
		}
		return NewHashEngine(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown encoder provider %q (want ollama, openai, gemini or hash)", cfg.Provider)
	}
}
