// Package run implements the run command: a one-off execution of a
// single crawl job, useful for debugging rule configurations.
package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitewatch/sitewatch/cmd/common"
	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/events"
	"github.com/sitewatch/sitewatch/internal/executor"
	"github.com/sitewatch/sitewatch/internal/fetch"
)

// Command returns the run command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Execute a single crawl job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), *cfgFile, *debug, args[0])
		},
	}
}

func runOnce(ctx context.Context, cfgFile string, debug bool, jobID string) error {
	deps, err := common.Build(ctx, cfgFile, debug)
	if err != nil {
		return err
	}
	defer deps.Close()

	job, err := deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("job %s not found", jobID)
		}
		return fmt.Errorf("load job: %w", err)
	}

	fetcher := fetch.New(deps.Cfg.Fetcher, deps.Log)
	exec := executor.New(
		fetcher,
		deps.Jobs,
		deps.Runs,
		deps.Content,
		events.NewNoop(),
		deps.Log,
		deps.Cfg.Scheduler.MaxConsecutiveFailures,
	)

	run := exec.Execute(ctx, job)

	fmt.Printf("job:      %s (%s)\n", job.Name, job.ID)
	fmt.Printf("outcome:  %s\n", run.Outcome)
	fmt.Printf("records:  %d\n", run.RecordsProduced)
	fmt.Printf("duration: %s\n", run.EndedAt.Sub(run.StartedAt).Round(0))
	if run.FailureDetail != nil {
		fmt.Printf("detail:   %s\n", *run.FailureDetail)
	}

	if run.Outcome != domain.RunOutcomeSuccess {
		return fmt.Errorf("run finished with outcome %s", run.Outcome)
	}
	return nil
}
