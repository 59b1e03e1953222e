// Command beacon runs the autonomous action dispatch engine: a scheduler
// that evaluates per-tenant trigger windows every tick and delivers voice or
// SMS actions through the configured provider chains.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"beacon/internal/config"
	"beacon/internal/logging"
	"beacon/internal/server"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "beacon",
		Short:         "Autonomous action dispatch engine",
		Long:          "Beacon evaluates scheduled proactive actions per tenant, gates them through policy, and delivers them over voice or SMS.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newTickCommand(&configPath))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("beacon %s\n", version)
		},
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, cron scheduler and outbox worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()
			return runServe(cmd.Context(), cfg, eng)
		},
	}
}

func newTickCommand(configPath *string) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a single scheduler tick and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			summary, err := eng.runner.RunTick(cmd.Context(), source)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "Tick source recorded in the summary")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Configure(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, eng *engine) error {
	log := logging.NewComponentLogger("main")

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		SchedulerSecret: cfg.Server.SchedulerSecret,
		CORSOrigins:     cfg.Server.CORSOrigins,
		AudioDir:        cfg.Server.AudioDir,
	}, eng.service, eng.speech, eng.actionQueue, eng.db, eng.metrics, logging.NewComponentLogger("server"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.service.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		if err := eng.worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := eng.service.Stop(shutdownCtx); err != nil {
			log.Warn("scheduler stop: %v", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
