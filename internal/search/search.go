package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	NoResults       = "No search results found."
	DisabledMessage = "Search functionality is disabled (Missing API Key)."
)

var ErrDisabled = errors.New("web search disabled: missing API key")

// Searcher runs a web search. Results are untrusted reference data.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type Result struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// StatusError is a non-2xx answer from the search API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search API returned %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether a failed search is worth another attempt:
// rate limits, server errors and transport failures are; bad requests,
// auth failures and a disabled client are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrDisabled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429 || se.StatusCode >= 500
	}
	return true
}

// Format renders results as numbered blocks separated by "---".
func Format(results []Result) string {
	if len(results) == 0 {
		return NoResults
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No Title"
		}
		url := r.URL
		if url == "" {
			url = "#"
		}
		snippet := r.Snippet
		if snippet == "" {
			snippet = "No Content"
		}
		blocks = append(blocks, fmt.Sprintf("[%d] %s\nURL: %s\nRelevance: %.2f\nSummary: %s\n",
			i+1, title, url, r.Relevance, snippet))
	}
	return strings.Join(blocks, "\n---\n")
}
