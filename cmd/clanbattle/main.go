/*
main.go - Application entry point

PURPOSE:
  Starts the clan battle ledger server and hosts small operator commands.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve      Run the HTTP API and the reminder scheduler (default)
  clandate   Print the clan day and clan month of a timestamp

STARTUP SEQUENCE:
  1. Load configuration (flags > env CLANBATTLE_* > config file > defaults)
  2. Build the zap logger
  3. Open the SQLite store and load the boss tables
  4. Create the manager registry, notification feed and metrics
  5. Start the reminder scheduler and the HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (10s timeout)
  3. Stop the scheduler and close the database

EXAMPLES:
  clanbattle serve --database-path=./data/clan.db
  clanbattle serve --database-path=":memory:" --log-level=debug
  clanbattle clandate --server=jp 2026-10-21T04:59:59+09:00

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
*/
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/warp/clanbattle/api"
	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/config"
	"github.com/warp/clanbattle/logging"
	"github.com/warp/clanbattle/manager"
	"github.com/warp/clanbattle/metrics"
	"github.com/warp/clanbattle/progress"
	"github.com/warp/clanbattle/store/sqlite"
)

const feedCapacity = 200

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "clanbattle",
		Short: "Clan battle ledger service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(newClanDateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.Int("subscribe-limit", defaults.GetInt("subscribe.limit"), "Active subscriptions allowed per boss")
	flags.Int("member-batch-limit", defaults.GetInt("members.batch_limit"), "Members allowed in one batch import")
	flags.String("bosses-path", defaults.GetString("bosses.path"), "Boss tier YAML (embedded tables when empty)")
	flags.Bool("scheduler-enabled", defaults.GetBool("scheduler.enabled"), "Send daily remaining-run reminders")
	flags.Duration("scheduler-interval", defaults.GetDuration("scheduler.interval"), "Reminder check interval")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "subscribe.limit", "subscribe-limit")
	bindFlag(cmd, "members.batch_limit", "member-batch-limit")
	bindFlag(cmd, "bosses.path", "bosses-path")
	bindFlag(cmd, "scheduler.enabled", "scheduler-enabled")
	bindFlag(cmd, "scheduler.interval", "scheduler-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	return readConfig(viper.GetViper(), cfgFile)
}

// readConfig loads path into v. A named file must exist and parse; without
// one, a missing default config file is not an error.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &configNotFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := sqlite.New(appConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	tables, err := progress.LoadTables(appConfig.BossesPath)
	if err != nil {
		return err
	}

	feed := manager.NewFeed(feedCapacity)
	groups := manager.NewRegistry(manager.Dependencies{
		Store:          store,
		Tables:         tables,
		Notifier:       feed,
		Logger:         logger,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
		SubscribeLimit: appConfig.SubscribeLimit,
		BatchLimit:     appConfig.MemberBatchLimit,
	})

	scheduler := api.NewReminderScheduler(groups, logger)
	scheduler.Enabled = appConfig.SchedulerEnabled
	scheduler.CheckInterval = appConfig.SchedulerInterval
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         appConfig.HTTPAddress,
		Handler:      api.NewRouter(api.NewHandler(groups, feed, logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// =============================================================================
// CLANDATE
// =============================================================================

func newClanDateCmd() *cobra.Command {
	var serverCode string
	cmd := &cobra.Command{
		Use:   "clandate [RFC3339 time]",
		Short: "Print the clan day and clan month of a timestamp (default now)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := battle.ParseServer(serverCode)
			if err != nil {
				return err
			}
			at := time.Now()
			if len(args) == 1 {
				if at, err = time.Parse(time.RFC3339, args[0]); err != nil {
					return fmt.Errorf("parsing time: %w", err)
				}
			}
			d := battle.ClanDateOf(at, server.UTCOffset())
			fmt.Fprintf(cmd.OutOrStdout(), "clan month %d-%02d, day %d\n", d.Year, int(d.Month), d.Day)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverCode, "server", "cn", "Server region (jp, tw, cn)")
	return cmd
}
