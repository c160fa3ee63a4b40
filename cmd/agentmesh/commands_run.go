package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/events"
	"github.com/agentmesh/agentmesh/internal/observability"
	"github.com/agentmesh/agentmesh/internal/orchestrator"
	"github.com/agentmesh/agentmesh/internal/runtime"
	"github.com/agentmesh/agentmesh/internal/skillconfig"
	"github.com/agentmesh/agentmesh/internal/tools/echo"
	"github.com/agentmesh/agentmesh/internal/tools/sleep"
	"github.com/agentmesh/agentmesh/internal/toolkit"
)

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		agentPath  string
		task       string
		dotenvPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a task to a root agent loaded from a skill configuration tree",
		Example: `  agentmesh run --config agentmesh.yaml --agent agents/root.yaml --task "summarize the repo"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), runOptions{
				configPath: configPath,
				agentPath:  agentPath,
				task:       task,
				dotenvPath: dotenvPath,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentmesh.yaml", "path to the agentmesh configuration file")
	cmd.Flags().StringVarP(&agentPath, "agent", "a", "", "path to the root agent's skill configuration YAML (required)")
	cmd.Flags().StringVarP(&task, "task", "t", "", "the task to hand the root agent (required)")
	cmd.Flags().StringVar(&dotenvPath, "dotenv", ".env", "path to a .env file to load before reading configuration")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

type runOptions struct {
	configPath string
	agentPath  string
	task       string
	dotenvPath string
}

func runTask(ctx context.Context, opts runOptions) error {
	if err := config.LoadDotEnv(opts.dotenvPath); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	newProvider, err := cfg.LLM.NewProviderFactory()
	if err != nil {
		return err
	}

	format := "text"
	if cfg.Logging.JSON {
		format = "json"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: format})
	sink := events.NewMultiSink(events.NewLogSink(logger))

	registry := toolkit.NewRegistry()
	registry.Register(echo.New())
	registry.Register(sleep.New())

	loader := &skillconfig.Loader{Tools: registry, NewProvider: newProvider}
	tmpl, err := loader.Load(opts.agentPath)
	if err != nil {
		return fmt.Errorf("load agent config: %w", err)
	}
	if tmpl.MaxIterations == 0 {
		tmpl.MaxIterations = cfg.Runtime.MaxIterations
	}

	reg := prometheus.NewRegistry()
	orch := orchestrator.New(logger.Slog(), reg)
	rt := runtime.New(orch, runtime.Options{
		Logger:       logger,
		Sink:         sink,
		ParseRetries: cfg.Runtime.ParseRetries,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go rt.Run(runCtx)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	id := rt.Start(runCtx, tmpl, opts.task)
	resp, err := orch.WaitForCompletion(runCtx, id)
	if err != nil {
		return fmt.Errorf("wait for completion: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("agent failed: %s", resp.Content)
	}
	fmt.Println(resp.Content)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *observability.Logger) {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info(context.Background(), "serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error(context.Background(), "metrics server stopped", "error", err)
	}
}
