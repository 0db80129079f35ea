package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"verdict.app/engine/common/logger"
)

var historyFlags struct {
	limit  int32
	offset int32
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past evaluations, newest first",
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.Int32Var(&historyFlags.limit, "limit", 20, "Maximum rows to show (1-100)")
	f.Int32Var(&historyFlags.offset, "offset", 0, "Rows to skip")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Evaluator.History(ctx, historyFlags.limit, historyFlags.offset)
	if err != nil {
		return fmt.Errorf("list evaluations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No evaluations yet. Run 'verdict evaluate' to create one.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tDECISION\tCONFIDENCE\tIDEA")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n",
			it.ID,
			it.CreatedAt.Format("2006-01-02 15:04"),
			it.Decision,
			it.Confidence,
			logger.Truncate(it.IdeaText, 60))
	}
	return tw.Flush()
}
