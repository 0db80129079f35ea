package retrieval_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"verdict.app/engine/internal/resilience"
	"verdict.app/engine/internal/retrieval"
)

type mockStore struct {
	mu       sync.Mutex
	calls    []int
	searchFn func(ctx context.Context, query string, k int) ([]retrieval.Match, error)
}

func (m *mockStore) SimilaritySearch(ctx context.Context, query string, k int) ([]retrieval.Match, error) {
	m.mu.Lock()
	m.calls = append(m.calls, k)
	m.mu.Unlock()
	return m.searchFn(ctx, query, k)
}

func match(content, source string, distance float64) retrieval.Match {
	return retrieval.Match{Content: content, Metadata: map[string]string{"source": source}, Distance: distance}
}

var _ = Describe("Engine", func() {
	var (
		ctx   context.Context
		store *mockStore
		cfg   retrieval.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &mockStore{}
		cfg = retrieval.DefaultConfig()
		cfg.Policy = resilience.Policy{MaxRetries: 2, InitialDelay: time.Millisecond}
	})

	It("fetches 2k candidates and returns the formatted top k", func() {
		store.searchFn = func(_ context.Context, _ string, k int) ([]retrieval.Match, error) {
			return []retrieval.Match{
				match("Travel is economy class only.", "travel.txt", 0.1),
				match("We build no hardware products.", "strategy.txt", 0.2),
				match("Budget cap is $50k.", "budget.txt", 0.3),
				match("Irrelevant", "noise.txt", 0.9),
			}, nil
		}

		out, err := retrieval.NewEngine(store, cfg).Query(ctx, "hardware products", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.calls).To(Equal([]int{4}))
		Expect(out).To(HavePrefix("[1] Relevance: 0.86 | Source: strategy.txt\nWe build no hardware products."))
		Expect(out).To(ContainSubstring("[2] Relevance: 0.63 | Source: travel.txt"))
		Expect(out).NotTo(ContainSubstring("noise.txt"))
		Expect(out).NotTo(ContainSubstring("[3]"))
	})

	It("uses the configured top k when k is not given", func() {
		store.searchFn = func(context.Context, string, int) ([]retrieval.Match, error) {
			return []retrieval.Match{match("a", "a", 0)}, nil
		}
		_, err := retrieval.NewEngine(store, cfg).Query(ctx, "q", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.calls).To(Equal([]int{6}))
	})

	It("returns the sentinel when the store has nothing", func() {
		store.searchFn = func(context.Context, string, int) ([]retrieval.Match, error) {
			return nil, nil
		}
		out, err := retrieval.NewEngine(store, cfg).Query(ctx, "q", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(retrieval.NoRelevantDocuments))
	})

	It("returns the sentinel variant when nothing passes the threshold", func() {
		store.searchFn = func(context.Context, string, int) ([]retrieval.Match, error) {
			return []retrieval.Match{match("far away", "x.txt", 0.8)}, nil
		}
		out, err := retrieval.NewEngine(store, cfg).Query(ctx, "q", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(retrieval.NoDocumentsAboveThreshold))
		Expect(out).To(HavePrefix("No relevant company documents found"))
	})

	It("retries store failures and then wraps ErrRetrieval", func() {
		boom := errors.New("connection reset")
		store.searchFn = func(context.Context, string, int) ([]retrieval.Match, error) {
			return nil, boom
		}
		_, err := retrieval.NewEngine(store, cfg).Query(ctx, "q", 3)
		Expect(err).To(MatchError(retrieval.ErrRetrieval))
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(store.calls).To(HaveLen(3))
	})

	It("serves repeated queries from the cache", func() {
		cfg.Cache = resilience.NewMemoryCache()
		cfg.CacheTTL = time.Minute
		store.searchFn = func(context.Context, string, int) ([]retrieval.Match, error) {
			return []retrieval.Match{match("no hardware", "s.txt", 0.1)}, nil
		}
		engine := retrieval.NewEngine(store, cfg)

		first, err := engine.Query(ctx, "hardware", 3)
		Expect(err).NotTo(HaveOccurred())
		second, err := engine.Query(ctx, "hardware", 3)
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
		Expect(store.calls).To(HaveLen(1))
	})

	It("keeps store order when reranking is off", func() {
		cfg.Rerank = false
		store.searchFn = func(context.Context, string, int) ([]retrieval.Match, error) {
			return []retrieval.Match{match("first", "1", 0.3), match("second", "2", 0.1)}, nil
		}
		out, err := retrieval.NewEngine(store, cfg).Query(ctx, "second", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.calls).To(Equal([]int{1}))
		Expect(out).To(Equal("[1] Relevance: 0.70 | Source: 1\nfirst"))
	})

	It("reports an offline knowledge base without a store", func() {
		out, err := retrieval.NewEngine(nil, cfg).Query(ctx, "q", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(retrieval.KnowledgeBaseOffline))
	})
})

type mockIndexer struct {
	recreated bool
	upserted  []retrieval.Chunk
	upsertErr error
}

func (m *mockIndexer) EnsureCollection(_ context.Context, recreate bool) error {
	m.recreated = recreate
	return nil
}

func (m *mockIndexer) Upsert(_ context.Context, chunks []retrieval.Chunk) (int, error) {
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.upserted = append(m.upserted, chunks...)
	return len(chunks), nil
}

var _ = Describe("Ingestor", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "strategy.txt"), []byte(strings.Repeat("We never build hardware. ", 100)), 0o644)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(dir, "finance"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "finance", "budget.md"), []byte("Budget cap is $50k per product."), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "logo.png"), []byte{0x89, 0x50}, 0o644)).To(Succeed())
	})

	It("chunks text and markdown files and upserts them", func() {
		idx := &mockIndexer{}
		n, err := retrieval.NewIngestor(idx, 1000, 200).Ingest(context.Background(), dir, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.recreated).To(BeTrue())
		Expect(n).To(Equal(len(idx.upserted)))

		sources := map[string]bool{}
		for _, c := range idx.upserted {
			sources[c.Source] = true
		}
		Expect(sources).To(Equal(map[string]bool{"strategy.txt": true, "finance/budget.md": true}))
		Expect(n).To(BeNumerically(">", 2))
	})

	It("returns zero for a directory without documents", func() {
		empty := GinkgoT().TempDir()
		idx := &mockIndexer{}
		n, err := retrieval.NewIngestor(idx, 1000, 200).Ingest(context.Background(), empty, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("fails on a missing directory", func() {
		_, err := retrieval.NewIngestor(&mockIndexer{}, 1000, 200).Ingest(context.Background(), filepath.Join(dir, "nope"), false)
		Expect(err).To(HaveOccurred())
	})

	It("surfaces upsert failures", func() {
		idx := &mockIndexer{upsertErr: errors.New("typesense down")}
		_, err := retrieval.NewIngestor(idx, 1000, 200).Ingest(context.Background(), dir, false)
		Expect(err).To(MatchError(ContainSubstring("typesense down")))
	})
})

type stubQuerier map[string]string

func (s stubQuerier) Query(_ context.Context, topic string, _ int) (string, error) {
	if out, ok := s[topic]; ok {
		return out, nil
	}
	return "", errors.New("offline")
}

var _ = Describe("Evaluate", func() {
	It("scores each case by the share of expected terms found", func() {
		q := stubQuerier{
			"What products should we avoid?": "[1] Relevance: 0.90 | Source: s\nNo hardware, no crypto, no blockchain.",
			"Who is our target audience?":    "[1] Relevance: 0.80 | Source: a\nGen Z.",
		}
		report := retrieval.Evaluate(context.Background(), q, retrieval.DefaultEvalCases, 0.7)

		Expect(report.Total).To(Equal(3))
		Expect(report.Passed).To(Equal(1))
		Expect(report.Failed).To(Equal(2))
		Expect(report.Results[0].Score).To(Equal(1.0))
		Expect(report.Results[1].Details).To(HavePrefix("Query failed"))
		Expect(report.Results[2].Score).To(BeNumerically("~", 1.0/3, 1e-9))
		Expect(report.Results[2].Details).To(ContainSubstring("Missing: Millennials, 18-35"))
		Expect(report.AverageScore).To(BeNumerically("~", (1.0+0+1.0/3)/3, 1e-9))
	})
})
