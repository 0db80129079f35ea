package retrieval

import "context"

// Match is one nearest neighbour as the vector store reports it. Distance is
// the provider's cosine distance: 0 is identical.
type Match struct {
	Content  string
	Metadata map[string]string
	Distance float64
}

// VectorStore is the nearest-neighbour query the engine consumes.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]Match, error)
}

// Chunk is a piece of a source document ready to be indexed.
type Chunk struct {
	ID      string
	Content string
	Source  string
	Index   int
}

// Indexer writes chunks into the store. TypesenseStore implements both sides.
type Indexer interface {
	EnsureCollection(ctx context.Context, recreate bool) error
	Upsert(ctx context.Context, chunks []Chunk) (int, error)
}
