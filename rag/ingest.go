package rag

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/smallnest/fabflow/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"
)

// Ingestion defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultBatchSize    = 32
	DefaultConcurrency  = 4
)

// Ingestor loads, splits, embeds and stores documents.
type Ingestor struct {
	embedder     Embedder
	store        VectorStore
	chunkSize    int
	chunkOverlap int
	batchSize    int
	concurrency  int
	logger       log.Logger
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(n int) IngestOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.chunkSize = n
		}
	}
}

// WithChunkOverlap sets the overlap between neighbouring chunks.
func WithChunkOverlap(n int) IngestOption {
	return func(i *Ingestor) {
		if n >= 0 {
			i.chunkOverlap = n
		}
	}
}

// WithBatchSize sets how many chunks go into one embedding request.
func WithBatchSize(n int) IngestOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l log.Logger) IngestOption {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor builds an Ingestor writing to store.
func NewIngestor(embedder Embedder, store VectorStore, opts ...IngestOption) *Ingestor {
	i := &Ingestor{
		embedder:     embedder,
		store:        store,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		batchSize:    DefaultBatchSize,
		concurrency:  DefaultConcurrency,
		logger:       log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.chunkOverlap >= i.chunkSize {
		i.chunkOverlap = i.chunkSize / 5
	}
	return i
}

// Supported reports whether path has an extension the Ingestor can load.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".html", ".htm":
		return true
	}
	return false
}

// Load reads path into one document per page (PDF) or per file.
func Load(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return documentloaders.NewPDF(f, info.Size()).Load(ctx)
	case ".txt", ".md":
		return documentloaders.NewText(f).Load(ctx)
	case ".html", ".htm":
		doc, err := goquery.NewDocumentFromReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		doc.Find("script, style, noscript").Remove()
		text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
		meta := map[string]any{}
		if title := strings.TrimSpace(doc.Find("title").Text()); title != "" {
			meta["title"] = title
		}
		return []schema.Document{{PageContent: text, Metadata: meta}}, nil
	}
	return nil, fmt.Errorf("unsupported file type: %s", path)
}

// IngestFile loads path and stores its chunks tagged with the categories. It
// returns the number of chunks stored.
func (i *Ingestor) IngestFile(ctx context.Context, path, mainCategory, subCategory string) (int, error) {
	if err := ValidateCategory(mainCategory, subCategory); err != nil {
		return 0, err
	}
	pages, err := Load(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(i.chunkSize),
		textsplitter.WithChunkOverlap(i.chunkOverlap),
	)
	chunks, err := textsplitter.SplitDocuments(splitter, pages)
	if err != nil {
		return 0, fmt.Errorf("split %s: %w", path, err)
	}

	source := filepath.Base(path)
	docs := make([]Document, 0, len(chunks))
	for n, c := range chunks {
		content := strings.ReplaceAll(c.PageContent, "\x00", "")
		if strings.TrimSpace(content) == "" {
			continue
		}
		meta := make(map[string]any, len(c.Metadata)+4)
		maps.Copy(meta, c.Metadata)
		meta[MetaMainCategory] = mainCategory
		meta[MetaSubCategory] = subCategory
		meta[MetaSource] = source
		meta[MetaPage] = pageOf(c.Metadata)

		docs = append(docs, Document{
			ID:       chunkID(mainCategory, subCategory, source, n),
			Content:  content,
			Metadata: meta,
		})
	}
	if len(docs) == 0 {
		i.logger.Warn("no text in %s", path)
		return 0, nil
	}

	if err := i.embed(ctx, docs); err != nil {
		return 0, fmt.Errorf("embed %s: %w", path, err)
	}
	if err := i.store.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("store %s: %w", path, err)
	}
	i.logger.Info("ingested %s [%s/%s]: %d pages, %d chunks", source, mainCategory, subCategory, len(pages), len(docs))
	return len(docs), nil
}

// IngestTree ingests every supported file under root laid out as
// root/<main category>/<sub category>/<file>. Directories that are not known
// categories are skipped.
func (i *Ingestor) IngestTree(ctx context.Context, root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		if err := ValidateCategory(parts[0], parts[1]); err != nil {
			i.logger.Warn("skipping %s: %v", path, err)
			return nil
		}

		n, err := i.IngestFile(ctx, path, parts[0], parts[1])
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

// embed fills the embedding of every doc, a batch per request with at most
// i.concurrency requests in flight.
func (i *Ingestor) embed(ctx context.Context, docs []Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for start := 0; start < len(docs); start += i.batchSize {
		batch := docs[start:min(start+i.batchSize, len(docs))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, d := range batch {
				texts[j] = d.Content
			}
			vecs, err := i.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vecs))
			}
			for j := range batch {
				batch[j].Embedding = vecs[j]
			}
			return nil
		})
	}
	return g.Wait()
}

func chunkID(main, sub, source string, n int) string {
	name := fmt.Sprintf("%s/%s/%s#%d", main, sub, source, n)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func pageOf(meta map[string]any) int {
	switch p := meta[MetaPage].(type) {
	case int:
		return p
	case int64:
		return int(p)
	case float64:
		return int(p)
	}
	return 0
}
