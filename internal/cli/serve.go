package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/audit"
	"github.com/ppiankov/veracity/internal/broadcast"
	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/dispatch"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/server"
)

var (
	serveAddr     string
	serveProvider string
	serveModel    string
	serveWorkers  int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audit engine with the HTTP API and live result stream",
	Long: `Serve starts the full audit engine:
- a bounded dispatch pool running audits concurrently
- the HTTP API for job submission and result queries
- a websocket stream of completed audits and metric snapshots

Example:
  veracity serve
  veracity serve --addr :8090 --provider ollama --model llama3.2
  veracity serve --provider openai --model gpt-4o-mini`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "LLM provider (openai, anthropic, ollama)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "LLM model name")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "audit worker count (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveProvider != "" {
		cfg.LLM.Provider = serveProvider
	}
	if serveModel != "" {
		cfg.LLM.Model = serveModel
	}
	if serveWorkers > 0 {
		cfg.Dispatch.Workers = serveWorkers
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.hub.Run(ctx)
	engine.pool.Start()
	defer engine.pool.Stop()

	srv := server.New(engine.pool, engine.hub, engine.provider, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "provider", engine.provider.Name())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// engine bundles the wired components
type engine struct {
	provider llm.Provider
	pool     *dispatch.Pool
	hub      *broadcast.Hub
}

// buildEngine wires provider, pipeline, pool, and hub from configuration
func buildEngine(cfg *model.Config, logger *slog.Logger) (*engine, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}

	var opts []audit.Option
	if cfg.Cache.Enabled {
		opts = append(opts, audit.WithCache(cache.NewMemoryCache(cfg.Cache.TTL, 2*cfg.Cache.TTL), cfg.Cache.TTL))
	}
	decomposer := audit.NewDecomposer(provider, opts...)
	verifier := audit.NewVerifier(provider)
	orchestrator := audit.NewOrchestrator(cfg.Audit, decomposer, verifier, nil, logger)

	hub := broadcast.NewHub(cfg.Broadcast, logger)
	pool := dispatch.NewPool(cfg.Dispatch, orchestrator, hub.Publish, logger)

	return &engine{provider: provider, pool: pool, hub: hub}, nil
}
