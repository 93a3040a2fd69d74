// Package serve implements the serve command: the long-running service
// combining the scheduler, worker pool and management API.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/sitewatch/sitewatch/cmd/common"
	"github.com/sitewatch/sitewatch/internal/api"
	"github.com/sitewatch/sitewatch/internal/events"
	"github.com/sitewatch/sitewatch/internal/executor"
	"github.com/sitewatch/sitewatch/internal/fetch"
	"github.com/sitewatch/sitewatch/internal/identity"
	"github.com/sitewatch/sitewatch/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

// Command returns the serve command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and management API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *cfgFile, *debug)
		},
	}
}

func run(ctx context.Context, cfgFile string, debug bool) error {
	deps, err := common.Build(ctx, cfgFile, debug)
	if err != nil {
		return err
	}
	defer deps.Close()

	cfg := deps.Cfg
	log := deps.Log

	publisher := events.NewNoop()
	if cfg.Events.URL != "" {
		p, pubErr := events.NewNATSPublisher(cfg.Events.URL, cfg.Events.SubjectPrefix, log)
		if pubErr != nil {
			return fmt.Errorf("connect event bus: %w", pubErr)
		}
		publisher = p
	}
	defer publisher.Close()

	fetcher := fetch.New(cfg.Fetcher, log)

	exec := executor.New(
		fetcher,
		deps.Jobs,
		deps.Runs,
		deps.Content,
		publisher,
		log,
		cfg.Scheduler.MaxConsecutiveFailures,
	)

	registry := prometheus.NewRegistry()
	metrics := scheduler.NewMetrics(registry)

	sched := scheduler.New(
		log,
		deps.Jobs,
		exec,
		metrics,
		cfg.Scheduler.CheckInterval,
		cfg.Scheduler.WorkerCount,
	)
	sched.Start()

	retention := cron.New()
	_, err = retention.AddFunc(cfg.Scheduler.RetentionSchedule, func() {
		pruned, pruneErr := deps.Runs.Prune(context.Background(), cfg.Scheduler.RunHistoryDepth)
		if pruneErr != nil {
			log.Error("run history pruning failed", "error", pruneErr)
			return
		}
		log.Info("pruned run history", "removed", pruned)
	})
	if err != nil {
		sched.Stop()
		return fmt.Errorf("schedule retention job: %w", err)
	}
	retention.Start()

	server := api.NewServer(cfg.Server, api.Deps{
		Jobs:               deps.Jobs,
		Runs:               deps.Runs,
		Content:            deps.Content,
		Fetcher:            fetcher,
		Sched:              sched,
		Verifier:           identity.NewHTTPVerifier(cfg.Identity),
		Registry:           registry,
		Log:                log,
		AttentionThreshold: cfg.Scheduler.MaxConsecutiveFailures,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case err = <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	retention.Stop()
	sched.Stop()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("HTTP server shutdown failed", "error", shutdownErr)
	}

	log.Info("shutdown complete")
	return err
}
