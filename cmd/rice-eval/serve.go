package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pkg/middleware"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the corpus and serve the evaluation endpoint",
		Long: `Index the corpus once, then serve:
- POST /v1/evaluation/evaluate  evaluate the posted scenarios
- GET  /healthz                 backend name and document count
- GET  /metrics                 Prometheus metrics`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	cmd.Flags().String("host", "", "HTTP server host (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, cfg, log, os.Stderr, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	api := http.NewServeMux()
	evaluation.NewHandler(env.harness, cfg.Eval.Cutoffs, log).RegisterRoutes(api)

	var apiHandler http.Handler = api
	if cfg.Server.RateLimit > 0 {
		rlCfg := middleware.DefaultRateLimiterConfig()
		rlCfg.RequestsPerSecond = cfg.Server.RateLimit
		rl := middleware.NewRateLimiter(rlCfg)
		defer rl.Close()
		apiHandler = rl.Middleware(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", apiHandler)
	mux.Handle("/healthz", api)
	mux.Handle("GET /metrics", env.collector.Handler())

	handler := metrics.HTTPMiddleware(env.collector, mux)
	handler = middleware.Logging(handler, log)
	handler = middleware.Recovery(handler, log)

	// Evaluations can take as long as every scenario query combined.
	httpSrv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "addr", httpSrv.Addr, "backend", env.harness.Name())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", "error", err)
	}

	log.Info("Server stopped")
	return nil
}
