package knowledge

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenaiEmbedder is the production Embedder backed by the Gemini API.
type GenaiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenaiEmbedder creates an embedder using the given model, for example
// "gemini-embedding-001".
func NewGenaiEmbedder(client *genai.Client, model string) *GenaiEmbedder {
	return &GenaiEmbedder{client: client, model: model}
}

// Embed generates an embedding truncated to VectorDimension.
func (e *GenaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(VectorDimension)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
