package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/foreman/internal/api"
	"github.com/seantiz/foreman/internal/config"
	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/runtime"
	"github.com/seantiz/foreman/internal/scheduler"
	"github.com/seantiz/foreman/internal/store"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "foreman",
		Short: "Foreman dispatches coding-agent tasks onto container-backed workers",
	}
	root.AddCommand(buildServeCommand(), buildVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the foreman version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serve() error {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("foreman: starting",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tick_interval", cfg.TickInterval,
		"stale_threshold", cfg.StaleThreshold,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bus := events.NewBus()
	defer bus.Close()
	recorder := events.NewRecorder(bus, db, logger)

	rt := runtime.NewDocker(cfg.DockerBin)

	sched := scheduler.New(scheduler.Config{
		TickInterval:   cfg.TickInterval,
		StaleThreshold: cfg.StaleThreshold,
		StopTimeout:    cfg.StopTimeout,
	}, db, rt, recorder, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconcile tasks left running by a previous process before dispatching.
	res, err := sched.RecoverOnStartup(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	logger.Info("startup recovery complete",
		"scanned", res.Scanned,
		"requeued", res.RecoveredToQueued,
		"failed", res.MarkedFailed,
	)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := api.NewServer(cfg.ListenAddr, db, sched, bus, recorder, cfg.RateLimit, cfg.RateWindow, logger)
	return srv.Run()
}
