package main

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

	"github.com/hazz-dev/pingproxy/internal/config"
	"github.com/hazz-dev/pingproxy/internal/metrics"
	"github.com/hazz-dev/pingproxy/internal/routeros"
	"github.com/hazz-dev/pingproxy/internal/server"
	"github.com/hazz-dev/pingproxy/internal/version"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pingproxy",
		Short:        "Authenticated proxy that pings hosts from MikroTik routers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file path")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded when present")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(pingCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pingproxy %s\n", version.String())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ping proxy",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	// 2. Build router client and API server
	client := routeros.New(cfg.Router, logger)
	apiServer := server.New(cfg.Auth.Token, client, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 3. Metrics listener (if configured)
	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		collector := metrics.New()
		apiServer.SetMetrics(collector)
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	logBanner(logger, cfg)

	// 4. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 5. Start listeners in background
	serverErr := make(chan error, 2)
	go func() {
		logger.Info("listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			logger.Info("metrics listening", "address", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// 6. Wait for signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	// 7. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Router.Timeout.Duration+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func logBanner(logger *slog.Logger, cfg *config.Config) {
	tokenPrefix := cfg.Auth.Token
	if len(tokenPrefix) > 4 {
		tokenPrefix = tokenPrefix[:4]
	}
	logger.Info("pingproxy starting",
		"version", version.Version,
		"address", cfg.Server.Address(),
		"endpoints", "GET /health, POST /ping",
		"router_user", cfg.Router.Username,
		"router_port", cfg.Router.Port,
		"probe_timeout", cfg.Router.Timeout.Duration,
		"token_prefix", tokenPrefix+"...",
	)
	if cfg.PlaceholderToken() {
		logger.Warn("using the placeholder bearer token; set PROXY_API_KEY")
	}
}
