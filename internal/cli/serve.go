package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flinkctl/internal/api"
	"flinkctl/internal/config"
	"flinkctl/internal/health"
	"flinkctl/internal/observability"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the deployment API server",
		Long: `Expose deployments, savepoints and job queries over HTTP.

The API listens on server.port and Prometheus metrics on server.metrics_port.
Requests under /v1 require "Authorization: Bearer <key>" when
server.api_key_file is set. /livez and /readyz are unauthenticated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}

	cmd.Flags().Int("listen-port", 8080, "API port")
	cmd.Flags().Int("metrics-port", 9090, "Metrics port")
	bind(a.v, cmd, "server.port", "listen-port")
	bind(a.v, cmd, "server.metrics_port", "metrics-port")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	logger := a.logger
	srvCfg := a.cfg.Server

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	c, err := a.components(recorders{remote: metrics, deploy: metrics, notify: metrics})
	if err != nil {
		return err
	}

	healthChecker := health.NewChecker(c.jm)

	apiKey := config.GetSecretFile(srvCfg.APIKeyFile)
	router := api.NewRouter(api.RouterConfig{
		Handler: api.NewHandler(c.deployer, c.jm, healthChecker, logger),
		Metrics: metrics,
		Logger:  logger,
		APIKey:  apiKey,
	})

	if apiKey != "" {
		logger.Info("API authentication enabled")
	} else {
		logger.Warn("API authentication disabled - no server.api_key_file configured")
	}

	// Deployments block on savepoint polling, so the write timeout is
	// left to the deploy deadline.
	apiServer := &http.Server{
		Addr:              ":" + strconv.Itoa(srvCfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Method(http.MethodGet, "/metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + strconv.Itoa(srvCfg.MetricsPort),
		Handler:      metricsRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)

	go func() {
		logger.Info("Starting API server", zap.Int("port", srvCfg.Port))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		logger.Info("Starting metrics server", zap.Int("port", srvCfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server shutdown error", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	case err := <-serverErr:
		logger.Error("Server failed to start", zap.Error(err))
		shutdown(5 * time.Second)
		c.close(context.Background(), logger)
		return err
	}

	// Phase 1: fail readiness so load balancers stop routing here.
	healthChecker.SetShuttingDown()

	if srvCfg.ShutdownDrainWait > 0 {
		logger.Info("Waiting for traffic to drain", zap.Duration("duration", srvCfg.ShutdownDrainWait))
		time.Sleep(srvCfg.ShutdownDrainWait)
	}

	// Phase 2: stop accepting connections and finish in-flight requests.
	logger.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: deliver queued deployment events.
	logger.Info("Draining notifier")
	c.close(context.Background(), logger)

	logger.Info("Shutdown complete")
	return nil
}
