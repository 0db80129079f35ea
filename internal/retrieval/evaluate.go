package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// EvalCase is a query and the terms a good answer must surface.
type EvalCase struct {
	Query            string   `yaml:"query" json:"query"`
	ExpectedContains []string `yaml:"expected_contains" json:"expected_contains"`
}

type EvalResult struct {
	Query   string  `json:"query"`
	Score   float64 `json:"score"`
	Passed  bool    `json:"passed"`
	Details string  `json:"details"`
}

type EvalReport struct {
	Total        int          `json:"total_tests"`
	Passed       int          `json:"passed"`
	Failed       int          `json:"failed"`
	PassRate     float64      `json:"pass_rate"`
	AverageScore float64      `json:"average_score"`
	Results      []EvalResult `json:"results"`
}

// DefaultEvalCases probe the strategy rules every knowledge base is expected to carry.
var DefaultEvalCases = []EvalCase{
	{Query: "What products should we avoid?", ExpectedContains: []string{"hardware", "crypto", "blockchain"}},
	{Query: "What is our budget cap for new products?", ExpectedContains: []string{"$50", "50k", "budget"}},
	{Query: "Who is our target audience?", ExpectedContains: []string{"Gen Z", "Millennials", "18-35"}},
}

type querier interface {
	Query(ctx context.Context, topic string, k int) (string, error)
}

// Evaluate scores retrieval by the share of expected terms present in the context.
func Evaluate(ctx context.Context, q querier, cases []EvalCase, minScore float64) EvalReport {
	report := EvalReport{Results: make([]EvalResult, 0, len(cases))}

	var total float64
	for _, c := range cases {
		r := evaluateCase(ctx, q, c, minScore)
		report.Results = append(report.Results, r)
		total += r.Score
		if r.Passed {
			report.Passed++
		}
	}

	report.Total = len(cases)
	report.Failed = report.Total - report.Passed
	if report.Total > 0 {
		report.PassRate = float64(report.Passed) / float64(report.Total)
		report.AverageScore = total / float64(report.Total)
	}

	slog.InfoContext(ctx, "retrieval evaluation finished",
		"total", report.Total,
		"passed", report.Passed,
		"avg_score", report.AverageScore)
	return report
}

func evaluateCase(ctx context.Context, q querier, c EvalCase, minScore float64) EvalResult {
	out, err := q.Query(ctx, c.Query, 0)
	if err != nil {
		return EvalResult{Query: c.Query, Details: fmt.Sprintf("Query failed: %v", err)}
	}

	lower := strings.ToLower(out)
	var missing []string
	for _, term := range c.ExpectedContains {
		if !strings.Contains(lower, strings.ToLower(term)) {
			missing = append(missing, term)
		}
	}

	var score float64
	if n := len(c.ExpectedContains); n > 0 {
		score = float64(n-len(missing)) / float64(n)
	}
	passed := score >= minScore

	details := fmt.Sprintf("Matched %d/%d expected terms. Score: %.2f (threshold: %.2f)",
		len(c.ExpectedContains)-len(missing), len(c.ExpectedContains), score, minScore)
	if !passed && len(missing) > 0 {
		details += " | Missing: " + strings.Join(missing, ", ")
	}

	return EvalResult{Query: c.Query, Score: score, Passed: passed, Details: details}
}
