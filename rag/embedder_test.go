package rag

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "소프트웨어 아키텍처")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "소프트웨어 아키텍처")
	require.NoError(t, err)
	c, err := e.EmbedQuery(ctx, "테스트 케이스")
	require.NoError(t, err)

	assert.Len(t, a, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	docs, err := e.EmbedDocuments(ctx, []string{"소프트웨어 아키텍처", "테스트 케이스"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{a, c}, docs)
}

type staticEmbeddings struct{}

func (staticEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (staticEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func TestLangChainEmbedder(t *testing.T) {
	e := NewLangChainEmbedder(staticEmbeddings{})

	vecs, err := e.EmbedDocuments(context.Background(), []string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {4}}, vecs)

	vec, err := e.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)
}

func TestOpenAIEmbedder(t *testing.T) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		// out of order on purpose
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		],"usage":{"prompt_tokens":4,"total_tokens":4}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "")
	vecs, err := e.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, req.Input)
	assert.Equal(t, DefaultEmbeddingModel, req.Model)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestOpenAIEmbedder_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("sk-bad", srv.URL+"/v1", "")
	_, err := e.EmbedQuery(context.Background(), "q")
	assert.ErrorContains(t, err, "bad key")
}
