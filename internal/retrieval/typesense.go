package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"verdict.app/engine/common/llm"
)

const embeddingField = "embedding"

// TypesenseStore keeps knowledge-base chunks in a Typesense collection with
// client-side embeddings and answers nearest-neighbour queries over them.
type TypesenseStore struct {
	client     *typesense.Client
	collection string
	embedder   llm.Embedder
}

func NewTypesenseClient(serverURL, apiKey string) *typesense.Client {
	return typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)
}

func NewTypesenseStore(client *typesense.Client, collection string, embedder llm.Embedder) *TypesenseStore {
	return &TypesenseStore{client: client, collection: collection, embedder: embedder}
}

func (s *TypesenseStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Match, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Vector queries go through multi_search so the embedding travels in the
	// request body rather than the URL.
	res, err := s.client.MultiSearch.Perform(ctx, &api.MultiSearchParams{}, api.MultiSearchSearchesParameter{
		Searches: []api.MultiSearchCollectionParameters{
			{
				Collection:    pointer.String(s.collection),
				Q:             pointer.String("*"),
				VectorQuery:   pointer.String(vectorQuery(vectors[0], k)),
				ExcludeFields: pointer.String(embeddingField),
				PerPage:       pointer.Int(k),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("typesense vector search: %w", err)
	}
	if len(res.Results) == 0 || res.Results[0].Hits == nil {
		return nil, nil
	}

	hits := *res.Results[0].Hits
	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		distance := 1.0
		if hit.VectorDistance != nil {
			distance = float64(*hit.VectorDistance)
		}
		matches = append(matches, Match{
			Content:  stringField(doc, "content"),
			Metadata: map[string]string{"source": stringField(doc, "source")},
			Distance: distance,
		})
	}
	return matches, nil
}

func (s *TypesenseStore) EnsureCollection(ctx context.Context, recreate bool) error {
	_, err := s.client.Collection(s.collection).Retrieve(ctx)
	exists := err == nil
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("retrieve collection: %w", err)
	}

	if exists && recreate {
		if _, err := s.client.Collection(s.collection).Delete(ctx); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
		slog.InfoContext(ctx, "knowledge base collection dropped", "collection", s.collection)
		exists = false
	}
	if exists {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: s.collection,
		Fields: []api.Field{
			{Name: "content", Type: "string"},
			{Name: "source", Type: "string", Facet: pointer.True()},
			{Name: "chunk_index", Type: "int32"},
			{Name: embeddingField, Type: "float[]", NumDim: pointer.Int(s.embedder.Dimensions())},
		},
	}
	if _, err := s.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	slog.InfoContext(ctx, "knowledge base collection created", "collection", s.collection)
	return nil
}

func (s *TypesenseStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	docs := make([]interface{}, len(chunks))
	for i, c := range chunks {
		docs[i] = map[string]interface{}{
			"id":           c.ID,
			"content":      c.Content,
			"source":       c.Source,
			"chunk_index":  c.Index,
			embeddingField: vectors[i],
		}
	}

	action := api.Upsert
	results, err := s.client.Collection(s.collection).Documents().Import(ctx, docs, &api.ImportDocumentsParams{
		Action: &action,
	})
	if err != nil {
		return 0, fmt.Errorf("import documents: %w", err)
	}

	written := 0
	var failures []string
	for _, r := range results {
		if r.Success {
			written++
			continue
		}
		failures = append(failures, r.Error)
	}
	if len(failures) > 0 {
		return written, fmt.Errorf("%d documents rejected: %s", len(failures), strings.Join(failures, "; "))
	}
	return written, nil
}

// Count reports how many chunks the collection holds.
func (s *TypesenseStore) Count(ctx context.Context) (int64, error) {
	col, err := s.client.Collection(s.collection).Retrieve(ctx)
	if err != nil {
		return 0, fmt.Errorf("retrieve collection: %w", err)
	}
	if col.NumDocuments == nil {
		return 0, nil
	}
	return *col.NumDocuments, nil
}

func (s *TypesenseStore) Ping(ctx context.Context) error {
	ok, err := s.client.Health(ctx, 2*time.Second)
	if err != nil {
		return fmt.Errorf("typesense health: %w", err)
	}
	if !ok {
		return errors.New("typesense unhealthy")
	}
	return nil
}

func vectorQuery(vec []float64, k int) string {
	var b strings.Builder
	b.WriteString(embeddingField)
	b.WriteString(":([")
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 32))
	}
	b.WriteString("], k:")
	b.WriteString(strconv.Itoa(k))
	b.WriteString(")")
	return b.String()
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
