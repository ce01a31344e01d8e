package engine

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine embeds text through the OpenAI embeddings API or any server
// speaking the same protocol.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEngine creates an OpenAIEngine. baseURL overrides the API
// endpoint when set; dim requests reduced output dimensions when positive.
func NewOpenAIEngine(apiKey, baseURL, model string, dim int) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dim:    dim,
	}
}

func (e *OpenAIEngine) Name() string { return ProviderOpenAI }

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if model == "" {
		model = e.model
	}
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{text},
	}
	// Only the text-embedding-3 family accepts a dimensions override.
	if e.dim > 0 && isDimensionable(model) {
		req.Dimensions = e.dim
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: no data returned")
	}

	src := resp.Data[0].Embedding
	v := make([]float32, len(src))
	for i := range src {
		v[i] = float32(src[i])
	}
	return v, nil
}

func isDimensionable(model string) bool {
	return model == string(openai.SmallEmbedding3) || model == string(openai.LargeEmbedding3)
}
