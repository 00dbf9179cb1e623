package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// DefaultGeminiModel is the embedding model used when none is configured
const DefaultGeminiModel = "gemini-embedding-001"

// GeminiBatchLimit is the maximum number of texts per batch request
const GeminiBatchLimit = 100

// GeminiProvider embeds text with the Gemini embedding API
type GeminiProvider struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string
	dims   int
}

// NewGeminiProvider creates a Gemini embedding provider
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeSemanticSimilarity

	return &GeminiProvider{client: client, model: em, name: "gemini/" + model}, nil
}

// Embed embeds up to GeminiBatchLimit texts in a single request
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > GeminiBatchLimit {
		return nil, &EmbeddingError{Provider: p.name, Message: fmt.Sprintf("batch of %d exceeds limit %d", len(texts), GeminiBatchLimit)}
	}

	batch := p.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := p.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, &EmbeddingError{
			Provider:  p.name,
			Message:   "batch embed request failed",
			Retryable: isRetryable(ctx, err),
			Cause:     err,
		}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &EmbeddingError{
			Provider:  p.name,
			Message:   fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)),
			Retryable: true,
		}
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, &EmbeddingError{Provider: p.name, Message: fmt.Sprintf("empty embedding at index %d", i), Retryable: true}
		}
		vectors[i] = Normalize(append([]float32(nil), e.Values...))
	}
	if p.dims == 0 {
		p.dims = len(vectors[0])
	}
	return vectors, nil
}

// Dimensions returns the vector size observed on the first successful call
func (p *GeminiProvider) Dimensions() int {
	return p.dims
}

// Name returns the provider and model name
func (p *GeminiProvider) Name() string {
	return p.name
}

// Close releases resources held by the client
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// isRetryable treats quota, availability and deadline failures as transient.
// Request errors (bad input, auth) and caller cancellation are not.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		return true
	}

	if code := apiErr.HTTPCode(); code > 0 {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	switch apiErr.GRPCStatus().Code() {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound, codes.FailedPrecondition:
		return false
	}
	return true
}
