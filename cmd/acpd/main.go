// Command acpd runs the Agent Communication Protocol runtime: the Registry,
// the Pipeline Orchestrator, and the Command Surface that fronts both plus
// every session_id-keyed Executor (spec.md §9's process-wide singletons).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shaharia-lab/acp-runtime/internal/command"
	"github.com/shaharia-lab/acp-runtime/internal/config"
	"github.com/shaharia-lab/acp-runtime/internal/logging"
	"github.com/shaharia-lab/acp-runtime/internal/pipeline"
	"github.com/shaharia-lab/acp-runtime/internal/registry"
)

func main() {
	configPath := os.Getenv("ACP_CONFIG")
	loader, err := config.NewLoader(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acpd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := loader.Current()

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.SetDefault(log)
	defer log.Sync()

	log.Info("starting acpd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(registry.WithStaleAfter(cfg.Timeouts.Stale))
	go reg.RunGC(ctx, cfg.Timeouts.Stale)

	orch := pipeline.New()

	srv := command.New(cfg, log, reg, orch)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutdown signal received")
		cancel()
		if err := <-errCh; err != nil {
			log.Error("command surface shutdown error", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			log.Error("command surface exited", zap.Error(err))
		}
	}

	log.Info("acpd stopped")
}
