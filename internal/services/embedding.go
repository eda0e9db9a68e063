package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"slackrag/internal/metrics"
)

// Input above this size gets truncated at a word boundary to stay under
// the embedding model's token window.
const (
	maxTokens        = 8000
	avgCharsPerToken = 4
)

type EmbeddingService struct {
	client *openai.Client
}

func NewEmbeddingService(apiKey string) *EmbeddingService {
	client := openai.NewClient(apiKey)
	return &EmbeddingService{client: client}
}

func (e *EmbeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings returns one vector per input text, in input order.
func (e *EmbeddingService) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = TruncateForTokens(text)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	req := openai.EmbeddingRequest{
		Input: input,
		Model: openai.AdaEmbeddingV2,
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.EmbeddingGenerations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	metrics.EmbeddingGenerations.WithLabelValues("success").Inc()
	metrics.EmbeddingGenerationDuration.Observe(time.Since(start).Seconds())

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}
	return embeddings, nil
}

// TruncateForTokens caps text at the model's approximate input budget,
// preferring a word boundary near the cut.
func TruncateForTokens(text string) string {
	maxChars := maxTokens * avgCharsPerToken
	if len(text) <= maxChars {
		return text
	}
	truncated := text[:maxChars]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars-100 {
		truncated = truncated[:lastSpace]
	}
	return truncated
}
