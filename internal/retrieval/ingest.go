package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const upsertBatchSize = 100

var ingestExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Ingestor loads policy documents from a directory into the knowledge base.
type Ingestor struct {
	indexer   Indexer
	chunkSize int
	overlap   int
}

func NewIngestor(indexer Indexer, chunkSize, overlap int) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Ingestor{indexer: indexer, chunkSize: chunkSize, overlap: overlap}
}

// Ingest chunks every .txt and .md file under dir and upserts the chunks.
// With clear set the collection is dropped and recreated first.
// It returns the number of chunks written.
func (i *Ingestor) Ingest(ctx context.Context, dir string, clear bool) (int, error) {
	start := time.Now()

	chunks, files, err := i.load(dir)
	if err != nil {
		return 0, err
	}
	if files == 0 {
		slog.WarnContext(ctx, "no documents found to ingest", "dir", dir)
		return 0, nil
	}

	if err := i.indexer.EnsureCollection(ctx, clear); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	written := 0
	for b := 0; b < len(chunks); b += upsertBatchSize {
		batch := chunks[b:min(b+upsertBatchSize, len(chunks))]
		n, err := i.indexer.Upsert(ctx, batch)
		written += n
		if err != nil {
			return written, fmt.Errorf("upsert batch %d: %w", b/upsertBatchSize, err)
		}
	}

	slog.InfoContext(ctx, "documents ingested",
		"dir", dir,
		"files", files,
		"chunks", written,
		"duration_ms", time.Since(start).Milliseconds())
	return written, nil
}

func (i *Ingestor) load(dir string) ([]Chunk, int, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, 0, fmt.Errorf("docs dir: %w", err)
	}

	var chunks []Chunk
	files := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ingestExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		files++
		chunks = append(chunks, ChunkDocument(filepath.ToSlash(rel), string(raw), i.chunkSize, i.overlap)...)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk docs dir: %w", err)
	}
	return chunks, files, nil
}
