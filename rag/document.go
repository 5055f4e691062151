package rag

import "context"

// Document is a chunk of text with metadata and, once embedded, its vector.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
}

// SearchResult is a document with its similarity to the query, higher is closer.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore stores embedded documents and searches them by similarity.
// A filter keeps only documents whose metadata equals every filter value.
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query []float32, k int, filter map[string]any) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Metadata keys set by the Ingestor.
const (
	MetaMainCategory = "main_category"
	MetaSubCategory  = "sub_category"
	MetaSource       = "source"
	MetaPage         = "page"
)
