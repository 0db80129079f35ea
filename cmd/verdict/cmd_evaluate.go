package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"verdict.app/engine/internal/guard"
	"verdict.app/engine/internal/model"
)

var evaluateFlags struct {
	file       string
	identifier string
	jsonOut    bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [idea]",
	Short: "Evaluate a product idea and print the verdict",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVarP(&evaluateFlags.file, "file", "f", "", "Read the idea from a file (- for stdin)")
	f.StringVar(&evaluateFlags.identifier, "identifier", "cli", "Rate-limit identifier")
	f.BoolVar(&evaluateFlags.jsonOut, "json", false, "Print the full evaluation as JSON")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	idea, err := readIdea(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	eval, err := a.Evaluator.Evaluate(ctx, idea, evaluateFlags.identifier)
	if err != nil {
		var valErr *guard.ValidationError
		if errors.As(err, &valErr) {
			return fmt.Errorf("idea rejected: %s", valErr.Reason)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if evaluateFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(eval)
	}
	printVerdict(out, eval)
	return nil
}

func readIdea(stdin io.Reader, args []string) (string, error) {
	switch {
	case evaluateFlags.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case evaluateFlags.file != "":
		b, err := os.ReadFile(evaluateFlags.file)
		if err != nil {
			return "", fmt.Errorf("read idea file: %w", err)
		}
		return string(b), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("provide the idea as an argument or with --file")
}

func printVerdict(out io.Writer, eval *model.Evaluation) {
	v := eval.Verdict
	fmt.Fprintf(out, "Decision:   %s\n", v.Decision)
	fmt.Fprintf(out, "Confidence: %.0f%%\n", v.Confidence*100)
	fmt.Fprintf(out, "Time:       %.1fs\n", eval.ExecutionTime.Seconds())
	fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(v.Reasoning))

	if len(v.PolicyViolations) > 0 {
		fmt.Fprintf(out, "\nPolicy violations:\n")
		for _, p := range v.PolicyViolations {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	if len(v.ActionItems) > 0 {
		fmt.Fprintf(out, "\nAction items:\n")
		for _, item := range v.ActionItems {
			fmt.Fprintf(out, "  - %s\n", item)
		}
	}

	if len(eval.Executions) > 0 {
		fmt.Fprintf(out, "\nAgents:\n")
		for _, x := range eval.Executions {
			line := fmt.Sprintf("  %-8s %-7s %5dms", x.Kind, x.Status, x.Duration.Milliseconds())
			if x.Error != nil {
				line += "  " + *x.Error
			}
			fmt.Fprintln(out, line)
		}
	}
}
