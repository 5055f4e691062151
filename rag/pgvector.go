package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DBPool is the subset of *pgxpool.Pool the pgvector store uses.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DefaultTable is the chunk table of the NCS corpus.
const DefaultTable = "ncs_documents"

// PGVectorStore keeps documents in PostgreSQL with the pgvector extension.
// Metadata is a JSONB column; filters compare its text values.
type PGVectorStore struct {
	pool  DBPool
	table string
}

var _ VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore connects to dsn.
func NewPGVectorStore(ctx context.Context, dsn, table string) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPGVectorStoreWithPool(pool, table), nil
}

// NewPGVectorStoreWithPool uses an existing pool.
func NewPGVectorStoreWithPool(pool DBPool, table string) *PGVectorStore {
	if table == "" {
		table = DefaultTable
	}
	return &PGVectorStore{pool: pool, table: table}
}

// InitSchema creates the extension and the chunk table for vectors of the
// given dimensions.
func (s *PGVectorStore) InitSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		);
	`, s.table, dimensions)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Add upserts docs by id.
func (s *PGVectorStore) Add(ctx context.Context, docs []Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.table)

	for _, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("%w: %s", ErrNoEmbedding, d.ID)
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata of %s: %w", d.ID, err)
		}

		if _, err := s.pool.Exec(ctx, query, d.ID, d.Content, metaJSON, pgvector.NewVector(d.Embedding)); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}
	return nil
}

// Search orders by cosine distance. The score is 1 - distance.
func (s *PGVectorStore) Search(ctx context.Context, query []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	args := []any{pgvector.NewVector(query)}
	var where []string
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		args = append(args, key, fmt.Sprint(filter[key]))
		where = append(where, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	args = append(args, k)

	sql := fmt.Sprintf("SELECT id, content, metadata, embedding <=> $1 AS distance FROM %s", s.table)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY distance LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			d        Document
			metaJSON []byte
			distance float64
		)
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &d.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", d.ID, err)
			}
		}
		results = append(results, SearchResult{Document: d, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close closes the pool.
func (s *PGVectorStore) Close() {
	s.pool.Close()
}
