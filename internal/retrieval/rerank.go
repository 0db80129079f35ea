package retrieval

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"verdict.app/engine/internal/model"
)

const (
	similarityWeight = 0.7
	keywordWeight    = 0.3
)

// Similarity converts a cosine distance into a score in [0,1].
func Similarity(distance float64) float64 {
	return 1 - min(max(distance, 0), 1)
}

// Filter keeps matches whose similarity reaches threshold, in store order.
// A NaN distance never passes.
func Filter(matches []Match, threshold float64) []model.RetrievedChunk {
	chunks := make([]model.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		if math.IsNaN(m.Distance) {
			continue
		}
		sim := Similarity(m.Distance)
		if sim < threshold {
			continue
		}
		source := m.Metadata["source"]
		if source == "" {
			source = "Unknown Source"
		}
		chunks = append(chunks, model.RetrievedChunk{
			Content:       m.Content,
			Source:        source,
			Similarity:    sim,
			CombinedScore: sim,
		})
	}
	return chunks
}

// KeywordOverlap is the share of distinct query terms found as substrings of content.
func KeywordOverlap(query, content string) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return min(float64(hits)/float64(len(terms)), 1)
}

func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// Rerank blends semantic and lexical signals, 0.7*similarity + 0.3*overlap,
// sorts descending with ties kept in input order, and keeps the top k.
// The input slice is not modified.
func Rerank(query string, chunks []model.RetrievedChunk, k int) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, len(chunks))
	copy(out, chunks)

	for i := range out {
		out[i].CombinedScore = similarityWeight*out[i].Similarity + keywordWeight*KeywordOverlap(query, out[i].Content)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Format renders chunks as the numbered context block handed to the decision call.
func Format(chunks []model.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		content := strings.TrimSpace(strings.ReplaceAll(c.Content, "\n", " "))
		parts = append(parts, fmt.Sprintf("[%d] Relevance: %.2f | Source: %s\n%s", i+1, c.CombinedScore, c.Source, content))
	}
	return strings.Join(parts, "\n\n")
}
