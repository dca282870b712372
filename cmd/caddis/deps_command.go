package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"caddis/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check availability of external binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			missing := 0
			for _, status := range statuses {
				kind := statusOK
				message := status.Command
				if !status.Available {
					kind = statusError
					message = status.Detail
					if !status.Optional {
						missing++
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}
			if missing > 0 {
				return errors.New("required external binaries are missing")
			}
			return nil
		},
	}
}
