package services

import (
	"context"
	"fmt"

	"slackrag/internal/storage"
)

// Embedder is the text → vector capability SearchService needs.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SearchService answers semantic queries over the indexed points.
type SearchService struct {
	embedder Embedder
	store    storage.VectorStore
}

func NewSearchService(embedder Embedder, store storage.VectorStore) *SearchService {
	return &SearchService{embedder: embedder, store: store}
}

func (s *SearchService) Search(ctx context.Context, query string, limit int, filter storage.SearchFilter) ([]storage.Hit, error) {
	vector, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := s.store.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return hits, nil
}

func (s *SearchService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
