package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"caddis/internal/api"
	"caddis/internal/ipc"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var stateFilters []string

	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List conversion jobs or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return describeJob(ctx, cmd, args[0])
			}
			return listJobs(ctx, cmd, stateFilters)
		},
	}

	cmd.Flags().StringSliceVar(&stateFilters, "state", nil,
		"Filter by job state (queued, provisioning, converting, succeeded, failed, timed_out)")
	return cmd
}

func listJobs(ctx *commandContext, cmd *cobra.Command, states []string) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.ListJobs(states)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(resp.Jobs) == 0 {
			fmt.Fprintln(out, "No jobs in the registry.")
			return nil
		}

		rows := make([][]string, 0, len(resp.Jobs))
		for _, job := range resp.Jobs {
			display := ""
			if job.Display > 0 {
				display = fmt.Sprintf(":%d", job.Display)
			}
			rows = append(rows, []string{
				job.ID,
				job.SourceName,
				job.TargetFormat,
				job.StateLabel,
				display,
				job.ErrorCode,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Source", "Target", "State", "Display", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
		return nil
	})
}

func describeJob(ctx *commandContext, cmd *cobra.Command, id string) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.DescribeJob(strings.TrimSpace(id))
		if err != nil {
			return fmt.Errorf("describe job: %w", err)
		}
		renderJobDetail(cmd, resp.Job)
		return nil
	})
}

func renderJobDetail(cmd *cobra.Command, job api.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Job "+job.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Source", statusInfo, job.SourceName, colorize))
	if job.SourceFormat != "" {
		fmt.Fprintln(out, renderStatusLine("Source version", statusInfo, job.SourceFormat, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Target", statusInfo, job.TargetFormat, colorize))

	stateKind := statusInfo
	switch job.State {
	case "succeeded":
		stateKind = statusOK
	case "failed", "timed_out":
		stateKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("State", stateKind, job.StateLabel, colorize))

	if job.Display > 0 {
		fmt.Fprintln(out, renderStatusLine("Display", statusInfo, fmt.Sprintf(":%d", job.Display), colorize))
	}
	if job.OutputPath != "" {
		fmt.Fprintln(out, renderStatusLine("Output", statusInfo, job.OutputPath, colorize))
	}
	if job.ErrorCode != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError,
			fmt.Sprintf("%s: %s", job.ErrorCode, job.ErrorMessage), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, job.CreatedAt, colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, job.UpdatedAt, colorize))
	fmt.Fprintln(out, renderStatusLine("Released", statusInfo, yesNo(job.Released), colorize))
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove released jobs from the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClearFinished()
				if err != nil {
					return fmt.Errorf("clear finished jobs: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished job(s).\n", resp.Removed)
				return nil
			})
		},
	}
}
