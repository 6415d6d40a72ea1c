// Command yoinker is the autonomous yoink agent.
//
// Usage:
//
//	yoinker run
//	yoinker run --strategy considerate --status-addr :8080
//	yoinker stats --limit 20
//	yoinker yoink
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/yoinker/internal/api"
	"github.com/albapepper/yoinker/internal/buffer"
	"github.com/albapepper/yoinker/internal/config"
	"github.com/albapepper/yoinker/internal/fetcher"
	"github.com/albapepper/yoinker/internal/logging"
	"github.com/albapepper/yoinker/internal/maintenance"
	"github.com/albapepper/yoinker/internal/provider/neynar"
	"github.com/albapepper/yoinker/internal/provider/yoink"
	"github.com/albapepper/yoinker/internal/scheduler"
	"github.com/albapepper/yoinker/internal/sleep"
	"github.com/albapepper/yoinker/internal/snapshot"
	"github.com/albapepper/yoinker/internal/strategy"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "yoinker",
		Short:         "Autonomous agent for the yoink capture-the-flag game",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(runCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(yoinkCmd())

	if err := root.Execute(); err != nil {
		slog.Error("yoinker failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the configured logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.Init(cfg.LogLevel, cfg.LogFormat), nil
}

func gameClient(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *yoink.Client {
	return yoink.NewClient(cfg.YoinkBaseURL, yoink.Options{
		StatsTTL:      cfg.StatsTTL,
		FetchInterval: cfg.FetchInterval,
		UserAgent:     config.UserAgent(),
		Clock:         clock,
	}, logger)
}

func actionClient(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (*neynar.Client, error) {
	return neynar.NewClient(cfg.NeynarBaseURL, cfg.NeynarAPIKey, neynar.Payload{
		FramesURL:  cfg.YoinkBaseURL + "/",
		PostURL:    cfg.YoinkBaseURL + "/api/yoink",
		CastHash:   cfg.CastHash,
		SignerUUID: cfg.NeynarSignerUUID,
	}, neynar.Options{
		Cooldown:    cfg.Cooldown,
		MinInterval: cfg.ActionMinInterval,
		UserAgent:   config.UserAgent(),
		HTTPClient:  yoink.NewHTTPClient(),
		Clock:       clock,
	}, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var strategyName, statusAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fetch task and scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if strategyName != "" {
				kind, err := strategy.ParseKind(strategyName)
				if err != nil {
					return &config.Error{Key: "--strategy", Reason: err.Error()}
				}
				cfg.Strategy = kind
			}
			if cmd.Flags().Changed("status-addr") {
				cfg.StatusAddr = statusAddr
			}
			return run(cfg, logger)
		},
	}

	cmd.Flags().StringVar(&strategyName, "strategy", "", "Override YOINK_STRATEGY (target-leader, target-momentum-leader, considerate)")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve the status API on this address (empty disables)")
	return cmd
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	clock := clockwork.NewRealClock()
	game := gameClient(cfg, clock, logger)
	action, err := actionClient(cfg, clock, logger)
	if err != nil {
		return err
	}

	sleeper := sleep.New(clock, cfg.Cooldown, nil)
	strat, err := strategy.New(cfg.Strategy, cfg.StrategyParams(), sleeper, logger)
	if err != nil {
		return err
	}

	feed := buffer.NewUnbounded[*snapshot.Snapshot]()
	fetch := fetcher.New(game, feed, fetcher.Options{Interval: cfg.FetchInterval, Clock: clock}, logger)
	sched := scheduler.New(scheduler.Options{
		SelfID:         cfg.UserID,
		StrategyName:   cfg.Strategy.String(),
		WindowSize:     cfg.WindowSize,
		ReceiveTimeout: cfg.ReceiveTimeout,
		ErrorBackoff:   cfg.ErrorBackoff,
	}, feed.Receive(), strat, action, sleeper, logger)

	logger.Info("Starting yoinker",
		"version", config.Version,
		"user", cfg.UserID,
		"strategy", cfg.Strategy,
		"cooldown", cfg.Cooldown)

	var wg sync.WaitGroup
	var fetchErr, schedErr, serveErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		fetchErr = fetch.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		// Nothing reads the feed once the scheduler returns.
		defer feed.Stop()
		schedErr = sched.Run(ctx)
	}()

	// Housekeeping: stats cache eviction and status heartbeat
	go maintenance.Start(ctx, clock, game, sched, maintenance.DefaultConfig(), logger)

	if cfg.StatusAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveErr = api.Serve(ctx, cfg.StatusAddr, api.NewRouter(sched, game, cfg), logger)
		}()
	}

	wg.Wait()

	if fetchErr != nil {
		logger.Error("Fetch task ended with error", "error", fetchErr)
	}
	if serveErr != nil {
		logger.Error("Status server ended with error", "error", serveErr)
	}
	if schedErr != nil {
		return fmt.Errorf("scheduler: %w", schedErr)
	}
	logger.Info("Shut down cleanly")
	return nil
}

// --------------------------------------------------------------------------
// stats command
// --------------------------------------------------------------------------

func statsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch the leaderboard once and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			game := gameClient(cfg, clockwork.NewRealClock(), logger)
			stats, err := game.Stats(ctx)
			if err != nil {
				return err
			}
			flag, err := game.Flag(ctx)
			if err != nil {
				return err
			}
			board := *stats
			board.Flag = *flag

			fmt.Printf("Holder: %s (%s)\n\n", flag.HolderName, flag.HolderID)
			for _, e := range board.Leaderboard(limit) {
				marker := " "
				switch {
				case e.Holder:
					marker = "*"
				case e.ID == cfg.UserID:
					marker = ">"
				}
				fmt.Printf("%s %3d. %-24s %-12s %8d\n", marker, e.Rank, e.Name, e.ID, e.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Rows to print (0 prints everyone)")
	return cmd
}

// --------------------------------------------------------------------------
// yoink command
// --------------------------------------------------------------------------

func yoinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "yoink",
		Short: "Attempt a single yoink and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			action, err := actionClient(cfg, clockwork.NewRealClock(), logger)
			if err != nil {
				return err
			}

			res, err := action.Act(ctx)
			if errors.Is(err, neynar.ErrRateLimitInconsistency) {
				fmt.Printf("rate limited (inconsistent date), retry in %s\n", res.RetryAfter)
				return nil
			}
			if err != nil {
				return err
			}

			switch res.Kind {
			case neynar.Succeeded:
				fmt.Printf("yoinked! %s\n", res.Title)
			case neynar.RateLimited:
				fmt.Printf("rate limited, retry in %s\n", res.RetryAfter.Round(time.Second))
			default:
				fmt.Printf("unexpected response (status %d): %s\n", res.Status, res.RawBody)
			}
			return nil
		},
	}
}
