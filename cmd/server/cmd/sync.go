package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/perchwatch/server/internal/config"
	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/gateway"
	"github.com/perchwatch/server/internal/storage/postgres"
	syncengine "github.com/perchwatch/server/internal/sync"
)

var (
	syncMaxFiles   int
	syncSourcesDir string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run and manage source synchronization",
	Long:  `Sweep external camera-feed sources, pull individual sources, and provision sources from YAML files.`,
}

// syncRunCmd performs one full sweep of all enabled sources.
var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep all enabled sources once",
	Long: `Run one full sweep: every enabled source is listed, new files are fetched
and handed to the detection pipeline, and cursors advance through the
contiguous successes.

Examples:
  server sync run
  server sync run --max-files 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coordinator, _, cleanup, err := newSyncEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		outcomes, err := coordinator.RunSweep(ctx, syncMaxFiles)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}

		printOutcomes(outcomes)
		return nil
	},
}

// syncSourceCmd pulls a single source by id.
var syncSourceCmd = &cobra.Command{
	Use:   "source <id>",
	Short: "Pull a single source by id",
	Long: `Run one source's pull cycle and print its outcome. Useful as a
connectivity test with a small file cap.

Examples:
  server sync source 01JF8X2K9PQR4T
  server sync source 01JF8X2K9PQR4T --max-files 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coordinator, _, cleanup, err := newSyncEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		outcome, err := coordinator.RunOne(ctx, args[0], syncMaxFiles)
		if err != nil {
			return fmt.Errorf("pull %s: %w", args[0], err)
		}

		printOutcomes([]syncengine.Outcome{outcome})
		if outcome.Err != nil {
			return outcome.Err
		}
		return nil
	},
}

// syncListCmd lists configured sources.
var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		_, repo, cleanup, err := newSyncEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		srcs, err := repo.List(ctx, nil)
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		if len(srcs) == 0 {
			fmt.Println("No sources configured")
			return nil
		}

		fmt.Printf("%-28s %-22s %-44s %-7s %-13s %s\n", "ID", "NAME", "BASE URL", "ENABLED", "AUTH", "CURSOR")
		for _, src := range srcs {
			u := src.BaseURL
			if len(u) > 44 {
				u = u[:41] + "..."
			}
			cursor := "-"
			if src.Cursor != nil {
				cursor = *src.Cursor
			}
			fmt.Printf("%-28s %-22s %-44s %-7v %-13s %s\n",
				src.ID, src.Name, u, src.Enabled, src.AuthMode, cursor,
			)
		}
		return nil
	},
}

// syncSeedCmd provisions sources from YAML files.
var syncSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create sources from YAML files",
	Long: `Read source definitions from the sources directory and create any that do
not exist yet (matched by name). Existing sources are never modified.

Examples:
  server sync seed
  server sync seed --sources configs/sources`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)

		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		repo := postgres.NewSourceRepository(pool)
		created, err := syncengine.SeedSources(ctx, repo, syncSourcesDir, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Created %d source(s)\n", created)
		return nil
	},
}

func init() {
	syncCmd.PersistentFlags().IntVar(&syncMaxFiles, "max-files", 0, "max new files per source (0 uses the default cap)")
	syncSeedCmd.Flags().StringVar(&syncSourcesDir, "sources", syncengine.DefaultSourcesDir, "directory of source YAML files")

	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncSourceCmd)
	syncCmd.AddCommand(syncListCmd)
	syncCmd.AddCommand(syncSeedCmd)
}

// newSyncEngine wires a coordinator against the configured database and
// sink. The returned cleanup closes the pool.
func newSyncEngine(ctx context.Context) (*syncengine.Coordinator, sources.Repository, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := config.NewLogger(cfg.Logging)

	poolCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := pgxpool.New(poolCtx, cfg.Database.URL)
	cancel()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}

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

	return coordinator, repo, pool.Close, nil
}

func printOutcomes(outcomes []syncengine.Outcome) {
	fmt.Printf("%-22s %-10s %-8s %-9s %-7s %-20s %s\n",
		"SOURCE", "CANDIDATES", "FETCHED", "INGESTED", "FAILED", "CURSOR", "STATUS")
	for _, o := range outcomes {
		status := "ok"
		switch {
		case o.InProgress:
			status = "in-progress"
		case o.Err != nil:
			status = o.Err.Error()
		}
		cursor := o.Cursor
		if cursor == "" {
			cursor = "-"
		}
		fmt.Printf("%-22s %-10d %-8d %-9d %-7d %-20s %s\n",
			o.SourceName, o.Candidates, o.Fetched, o.Ingested, o.Failed, cursor, status)
	}
}
