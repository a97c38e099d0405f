package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/perchwatch/server/internal/api"
	"github.com/perchwatch/server/internal/config"
	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/gateway"
	"github.com/perchwatch/server/internal/metrics"
	"github.com/perchwatch/server/internal/storage/postgres"
	syncengine "github.com/perchwatch/server/internal/sync"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Perchwatch server",
	Long: `Start the HTTP API and the sync scheduler.

The server will:
- Load configuration from environment variables
- Connect to PostgreSQL and expose the source management API
- Sweep all enabled sources on the configured interval
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting perchwatch server")

	metrics.Init(Version, GitCommit, BuildDate)

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(poolCtx, cfg.Database.URL)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	dbCollector := metrics.NewDBCollector(pool)
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	repo := postgres.NewSourceRepository(pool)

	gateways := gateway.NewRegistry(map[sources.Kind]gateway.Gateway{
		sources.KindHTTPIndex: gateway.NewHTTPIndexGateway(logger,
			gateway.WithTimeouts(cfg.Sync.ListingTimeout, cfg.Sync.FetchTimeout)),
	})
	sink := syncengine.NewHTTPSink(cfg.Sink.URL, cfg.Sink.APIKey)
	runner := syncengine.NewRunner(gateways, sink, repo, logger)
	coordinator := syncengine.NewCoordinator(repo, runner, logger,
		syncengine.WithWorkers(cfg.Sync.Workers),
		syncengine.WithSweepDeadline(cfg.Sync.SweepDeadline))

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	scheduler := syncengine.NewScheduler(coordinator, cfg.Sync.Interval, cfg.Sync.MaxFiles, logger)
	scheduler.Start(schedCtx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(repo, coordinator, pool, cfg.Environment, logger),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

// loadConfig loads env config and applies the global logging flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}
