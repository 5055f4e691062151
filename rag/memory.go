package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrNoEmbedding is returned when a document reaches a store without a vector.
var ErrNoEmbedding = errors.New("document has no embedding")

// InMemoryVectorStore is a VectorStore kept in process, ranked by cosine
// similarity.
type InMemoryVectorStore struct {
	mu   sync.RWMutex
	docs []Document
}

var _ VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore returns an empty store.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{}
}

// Add stores docs. Documents without an ID get a random one.
func (s *InMemoryVectorStore) Add(_ context.Context, docs []Document) error {
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("%w: %s", ErrNoEmbedding, d.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		s.docs = append(s.docs, d)
	}
	return nil
}

// Search returns the k documents closest to query among those matching filter.
func (s *InMemoryVectorStore) Search(_ context.Context, query []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.docs))
	for _, d := range s.docs {
		if !matchesFilter(d.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{Document: d, Score: cosineSimilarity(query, d.Embedding)})
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored documents.
func (s *InMemoryVectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
