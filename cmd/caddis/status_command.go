package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"caddis/internal/api"
	"caddis/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and resource pool status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return fmt.Errorf("fetch status: %w", err)
				}
				renderStatus(cmd.OutOrStdout(), resp.Status)
				return nil
			})
		},
	}
}

func renderStatus(out io.Writer, status api.DaemonStatus) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runningKind := statusError
	if status.Running {
		runningKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
	fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Registry", statusInfo, status.RegistryPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Engine", colorize) {
		fmt.Fprintln(out, line)
	}
	eng := status.Engine
	fmt.Fprintln(out, renderStatusLine("Admission limit", statusInfo, fmt.Sprintf("%d", eng.AdmissionLimit), colorize))
	fmt.Fprintln(out, renderStatusLine("Held locally", statusInfo, fmt.Sprintf("%d", eng.HeldByProcess), colorize))
	fmt.Fprintln(out, renderStatusLine("Display range", statusInfo,
		fmt.Sprintf(":%d-:%d", eng.DisplayRangeMin, eng.DisplayRangeMax), colorize))
	fmt.Fprintln(out, renderStatusLine("Timeout", statusInfo, eng.Timeout, colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	jobs := status.Jobs
	fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", jobs.Total), colorize))
	fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", jobs.Queued), colorize))
	fmt.Fprintln(out, renderStatusLine("Active", statusInfo, fmt.Sprintf("%d", jobs.Active), colorize))
	fmt.Fprintln(out, renderStatusLine("Succeeded", statusOK, fmt.Sprintf("%d", jobs.Succeeded), colorize))
	failedKind := statusInfo
	if jobs.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", jobs.Failed), colorize))
	timedOutKind := statusInfo
	if jobs.TimedOut > 0 {
		timedOutKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Timed out", timedOutKind, fmt.Sprintf("%d", jobs.TimedOut), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range status.Dependencies {
		kind := statusError
		message := "missing"
		if dep.Available {
			kind = statusOK
			message = dep.Command
		} else if dep.Detail != "" {
			message = dep.Detail
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
	}
}
