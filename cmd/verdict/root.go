package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"verdict.app/engine/common/logger"
	"verdict.app/engine/core/config"
	"verdict.app/engine/internal/app"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Multi-agent go/no-go evaluation of product ideas",
	Long:  "verdict runs market, technical, risk and user-feedback analysis on a product idea\nand synthesizes a GO, NO-GO or PIVOT decision against company policy.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(ragEvalCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildApp loads CLI configuration and assembles the pipeline. Logs go to
// stderr so stdout carries only command output.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetupWriter(cfg, os.Stderr)

	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return a, nil
}
