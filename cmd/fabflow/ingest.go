package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smallnest/fabflow/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest documents into the vector store",
	Long: `Splits, embeds and stores documents (.pdf, .txt, .md, .html). A directory is
walked as <root>/<main category>/<sub category>/<file>; single files take their
categories from --main-category and --sub-category. The memory backend keeps
nothing after the command exits and is only useful as a dry run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, map[string]string{
			"rag.backend":    "backend",
			"rag.chunk_size": "chunk-size",
		})
		if err != nil {
			return err
		}
		mainCategory, _ := cmd.Flags().GetString("main-category")
		subCategory, _ := cmd.Flags().GetString("sub-category")

		ctx := cmd.Context()
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		model, err := newModel(cfg)
		if err != nil {
			return err
		}
		embedder, err := newEmbedder(cfg, model)
		if err != nil {
			return err
		}
		store, closeStore, err := newVectorStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ingestor := rag.NewIngestor(embedder, store,
			rag.WithChunkSize(cfg.RAG.ChunkSize),
			rag.WithChunkOverlap(cfg.RAG.ChunkOverlap),
			rag.WithIngestLogger(logger),
		)

		var errs []error
		total := 0
		for _, path := range args {
			info, err := os.Stat(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			var n int
			if info.IsDir() {
				n, err = ingestor.IngestTree(ctx, path)
			} else {
				n, err = ingestor.IngestFile(ctx, path, mainCategory, subCategory)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
			total += n
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks\n", total)
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("main-category", "", "NCS main category of single files")
	ingestCmd.Flags().String("sub-category", "", "NCS sub category of single files")
	ingestCmd.Flags().String("backend", "", "Vector store: memory, pgvector")
	ingestCmd.Flags().Int("chunk-size", 0, "Chunk size in characters")
}
