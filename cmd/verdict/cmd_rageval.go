package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"verdict.app/engine/internal/app"
	"verdict.app/engine/internal/retrieval"
)

var ragEvalFlags struct {
	casesFile string
	minScore  float64
	jsonOut   bool
}

var ragEvalCmd = &cobra.Command{
	Use:   "rag-eval",
	Short: "Score knowledge-base retrieval against expected terms",
	RunE:  runRAGEval,
}

func init() {
	f := ragEvalCmd.Flags()
	f.StringVar(&ragEvalFlags.casesFile, "cases", "", "YAML file of {query, expected_contains} cases (default: built-in cases)")
	f.Float64Var(&ragEvalFlags.minScore, "min-score", 0.5, "Share of expected terms a case must surface to pass")
	f.BoolVar(&ragEvalFlags.jsonOut, "json", false, "Print the report as JSON")
}

func runRAGEval(cmd *cobra.Command, _ []string) error {
	cases := retrieval.DefaultEvalCases
	if ragEvalFlags.casesFile != "" {
		loaded, err := loadEvalCases(ragEvalFlags.casesFile)
		if err != nil {
			return err
		}
		cases = loaded
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Retrieval == nil {
		return fmt.Errorf("rag-eval: %w", app.ErrKnowledgeBaseDisabled)
	}

	report := retrieval.Evaluate(ctx, a.Retrieval, cases, ragEvalFlags.minScore)

	out := cmd.OutOrStdout()
	if ragEvalFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, r := range report.Results {
		mark := "FAIL"
		if r.Passed {
			mark = "PASS"
		}
		fmt.Fprintf(out, "[%s] %.2f  %s\n       %s\n", mark, r.Score, r.Query, r.Details)
	}
	fmt.Fprintf(out, "\n%d/%d passed (%.0f%%), average score %.2f\n",
		report.Passed, report.Total, report.PassRate*100, report.AverageScore)
	return nil
}

func loadEvalCases(path string) ([]retrieval.EvalCase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	var cases []retrieval.EvalCase
	if err := yaml.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("parse cases %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases in %s", path)
	}
	return cases, nil
}
