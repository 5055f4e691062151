// Package rag implements the NCS document chatbot: category tagged document
// ingestion, vector search with metadata filters and grounded answers.
//
// # Ingestion
//
// Files are loaded by extension (.pdf, .txt, .md, .html), split into
// overlapping chunks, embedded concurrently in batches and written to a
// VectorStore. Every chunk carries main_category, sub_category, source and
// page metadata:
//
//	ing := rag.NewIngestor(embedder, store, rag.WithChunkSize(1000), rag.WithChunkOverlap(200))
//	n, err := ing.IngestFile(ctx, "docs/SW아키텍쳐.pdf", "정보기술개발", "SW아키텍쳐")
//
// IngestTree walks a root/main_category/sub_category/file layout.
//
// # Stores
//
// InMemoryVectorStore keeps everything in process. PGVectorStore keeps chunks
// in PostgreSQL with the pgvector extension and filters on JSONB metadata.
//
// # Answers
//
// Chatbot.Ask retrieves the closest chunks for a query, optionally narrowed to
// a category, and makes one model call with the passages as context. The
// answer is returned as markdown and as sanitized HTML.
package rag
