package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "text-embedding-004"

// GeminiEngine embeds text with a Google Gemini embedding model.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine connects to the Gemini API with apiKey.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiEngine{client: client, model: model}, nil
}

func (e *GeminiEngine) Name() string { return ProviderGemini }

func (e *GeminiEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if model == "" {
		model = e.model
	}
	res, err := e.client.EmbeddingModel(model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini embed: empty embedding")
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying client.
func (e *GeminiEngine) Close() error {
	return e.client.Close()
}
