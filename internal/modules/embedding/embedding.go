// Package embedding turns research briefs into vectors for semantic search.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/modules/agent"
)

// Embedder produces a fixed-size vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}

var ErrEmptyEmbedding = errors.New("embedding response contained no vector")

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client     openaiclient.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// NewOpenAIEmbedder builds an embedder from cfg. It returns nil when no api
// key is configured, which callers treat as "always use the zero vector".
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(1),
	}
	if base := agent.NormalizeOpenAIBaseURL(cfg.Endpoint); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	return &OpenAIEmbedder{
		client:     openaiclient.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := e.client.Embeddings.New(ctx, openaiclient.EmbeddingNewParams{
		Input:      openaiclient.EmbeddingNewParamsInputUnion{OfString: openaiclient.String(text)},
		Model:      openaiclient.EmbeddingModel(e.model),
		Dimensions: openaiclient.Int(int64(e.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}

// Zero returns an all-zero vector of the given size.
func Zero(dimensions int) []float64 {
	if dimensions <= 0 {
		return []float64{}
	}
	return make([]float64, dimensions)
}
