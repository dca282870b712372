package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"caddis/internal/config"
	"caddis/internal/engine"
	"caddis/internal/jobs"
	"caddis/internal/logging"
	"caddis/internal/services/oda"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var targetFlag string
	var outFlag string
	var sourceVersion string

	cmd := &cobra.Command{
		Use:   "convert <drawing>",
		Short: "Convert one drawing without going through the daemon",
		Long: `Convert runs a single conversion in-process. It shares the admission
slots and display locks with any running daemon, so concurrent workers
never oversubscribe the converter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			target, err := oda.ParseFormat(targetFlag)
			if err != nil {
				return err
			}

			inputPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			input, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read input drawing: %w", err)
			}
			if int64(len(input)) > cfg.MaxInputBytes() {
				return fmt.Errorf("input exceeds %d byte limit", cfg.MaxInputBytes())
			}

			destPath := strings.TrimSpace(outFlag)
			if destPath == "" {
				stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
				destPath = filepath.Join(filepath.Dir(inputPath), stem+target.Ext())
			} else if destPath, err = config.ExpandPath(destPath); err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}

			store, err := jobs.Open(cfg.Paths.RuntimeDir)
			if err != nil {
				return fmt.Errorf("open job registry: %w", err)
			}
			defer store.Close()

			eng, err := engine.New(cfg, store, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := eng.Convert(runCtx, engine.Request{
				Filename:   filepath.Base(inputPath),
				Input:      input,
				Target:     target,
				SourceHint: sourceVersion,
				DestPath:   destPath,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Converted %s -> %s (%s)\n",
				filepath.Base(inputPath), destPath, result.Duration.Round(10*time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target format: dwg, dxf, or dxb")
	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "Destination path (defaults next to the input)")
	cmd.Flags().StringVar(&sourceVersion, "source-version", "", "Source drawing version hint (defaults to auto-detect)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
