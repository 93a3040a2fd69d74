// Package jobs implements the jobs command for inspecting configured
// crawl jobs from the terminal.
package jobs

import (
	"context"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sitewatch/sitewatch/cmd/common"
	"github.com/sitewatch/sitewatch/internal/domain"
)

const listLimit = 500

// Command returns the jobs command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List configured crawl jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return list(cmd.Context(), *cfgFile, *debug, status)
		},
	}
	cmd.Flags().StringVar(&status, "status", "",
		"filter by status (pending, normal, failed, disabled)")
	return cmd
}

func list(ctx context.Context, cfgFile string, debug bool, statusFilter string) error {
	deps, err := common.Build(ctx, cfgFile, debug)
	if err != nil {
		return err
	}
	defer deps.Close()

	jobs, err := deps.Jobs.List(ctx, domain.JobStatus(statusFilter), listLimit, 0)
	if err != nil {
		return err
	}

	renderTable(jobs)
	return nil
}

func renderTable(jobs []*domain.CrawlJob) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Name", "Entry URL", "Frequency", "Status", "Last Run", "Fail Reason"})

	for _, job := range jobs {
		lastRun := "never"
		if job.LastRunEndAt != nil {
			lastRun = job.LastRunEndAt.Format(time.RFC3339)
		}
		failReason := ""
		if job.FailReason != nil {
			failReason = *job.FailReason
		}
		t.AppendRow(table.Row{
			job.ID,
			job.Name,
			job.EntryURL,
			job.Frequency.String(),
			job.Status,
			lastRun,
			failReason,
		})
	}

	t.Render()
}
