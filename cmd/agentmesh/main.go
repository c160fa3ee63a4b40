// Command agentmesh runs a root agent loaded from a skill configuration
// tree against a single task, or prints the configuration JSON Schema.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentmesh",
		Short:        "agentmesh runs LLM-driven agents that can delegate to subagents and message their peers",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildSchemaCmd())
	return rootCmd
}
