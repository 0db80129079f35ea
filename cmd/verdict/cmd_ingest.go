package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"verdict.app/engine/internal/retrieval"
)

var ingestFlags struct {
	docsDir string
	clear   bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load company policy documents (.txt, .md) into the knowledge base",
	RunE:  runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.docsDir, "docs-dir", "", "Directory of policy documents (default RAG_DOCS_DIR)")
	f.BoolVar(&ingestFlags.clear, "clear", false, "Drop and recreate the collection before ingesting")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	kb, err := a.KnowledgeBase()
	if err != nil {
		return err
	}

	dir := ingestFlags.docsDir
	if dir == "" {
		dir = a.Config.Retrieval.DocsDir
	}

	ingestor := retrieval.NewIngestor(kb, a.Config.Retrieval.ChunkSize, a.Config.Retrieval.ChunkOverlap)
	n, err := ingestor.Ingest(ctx, dir, ingestFlags.clear)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", dir, err)
	}

	total, err := kb.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %s (%d in collection)\n", n, dir, total)
	return nil
}
