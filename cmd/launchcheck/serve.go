package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/launchcheck"
	"github.com/loykin/launchcheck/internal/cron"
	"github.com/loykin/launchcheck/internal/server"
	"github.com/spf13/cobra"
)

// ServeFlags override the [server], [metrics] and schedule settings.
type ServeFlags struct {
	Listen        string
	BasePath      string
	MetricsListen string
	Schedule      string
	RunNow        bool
}

func createServeCommand(globalFlags *GlobalFlags, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API, optional metrics listener and schedule",
		Long: `Serve the control API (pause, resume, cancel, run, status, results),
expose Prometheus metrics on a separate listener and optionally start a
batch on a cron schedule.

Examples:
  launchcheck serve
  launchcheck serve --listen :8787 --metrics-listen :9100
  launchcheck serve --schedule "0 3 * * *" --run-now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), globalFlags, flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "control API address (default server.listen)")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "control API prefix (default server.base_path)")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "Prometheus /metrics address (default metrics.listen)")
	cmd.Flags().StringVar(&flags.Schedule, "schedule", "", "cron expression that starts a batch (default schedule)")
	cmd.Flags().BoolVar(&flags.RunNow, "run-now", false, "start a batch immediately")
	return cmd
}

func runServe(ctx context.Context, globalFlags *GlobalFlags, flags *ServeFlags, out io.Writer) error {
	cfg, err := loadConfig(globalFlags)
	if err != nil {
		return err
	}
	if flags.Listen != "" {
		cfg.Server.Listen = flags.Listen
	}
	if flags.BasePath != "" {
		cfg.Server.BasePath = flags.BasePath
	}
	if flags.MetricsListen != "" {
		cfg.Metrics.Listen = flags.MetricsListen
	}
	if flags.Schedule != "" {
		cfg.Schedule = flags.Schedule
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, closer := setupLogger(cfg, out)
	defer func() { _ = closer.Close() }()

	tester, err := launchcheck.New(cfg, launchcheck.Options{Logger: log})
	if err != nil {
		return err
	}
	defer func() { _ = tester.Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		if err := launchcheck.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		msrv := server.NewMetricsServer(cfg.Metrics.Listen)
		defer func() { _ = msrv.Close() }()
		log.Info("metrics listening", "addr", cfg.Metrics.Listen)
	}

	authSvc, err := cfg.Auth()
	if err != nil {
		return err
	}
	if authSvc == nil {
		log.Warn("control API has no auth_secret; every caller may control the batch")
	}

	svc := tester.Service()
	srv := server.NewServer(ctx, cfg.Server.Listen, cfg.Server.BasePath, svc, authSvc)
	log.Info("control API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath, "auth", authSvc != nil)

	if cfg.Schedule != "" {
		sch, err := cron.New(cfg.Schedule, svc, log)
		if err != nil {
			return err
		}
		sch.Start(ctx)
		defer sch.Stop()
	}
	if flags.RunNow {
		if err := svc.Trigger(ctx); err != nil {
			log.Error("failed to start batch", "error", err)
		}
	}

	<-ctx.Done()
	log.Info("shutting down")
	svc.Control().Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("control API shutdown", "error", err)
	}
	svc.Wait()
	return nil
}
