package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/eml-to-mbox/archive"
	"github.com/dhcgn/eml-to-mbox/cmd"
	"github.com/dhcgn/eml-to-mbox/collect"
	"github.com/dhcgn/eml-to-mbox/config"
	"github.com/dhcgn/eml-to-mbox/convert"
)

var errVerifyMismatch = errors.New("archive verification failed")

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eml-to-mbox <input-folder> <output-file>",
		Short:         "Convert a folder of .eml files into a single mboxrd archive",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, args)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting eml-to-mbox", "input", cfg.InputDir, "output", cfg.OutputPath, "recursive", cfg.Recursive)

			return run(cmd.Context(), cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewInspectCommand())

	return rootCmd
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := collect.CheckRoot(cfg.InputDir); err != nil {
		return err
	}

	paths, err := collect.Files(cfg.InputDir, cfg.Recursive, cfg.Patterns)
	if err != nil {
		return fmt.Errorf("collect input files: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w in %s (patterns %v)", collect.ErrNoFiles, cfg.InputDir, cfg.Patterns)
	}
	logger.Info("input files collected", "count", len(paths))

	if err := archive.CheckDestination(cfg.OutputPath); err != nil {
		return err
	}

	summary, err := convert.Run(ctx, convert.Options{Config: cfg, Paths: paths}, logger)
	if err != nil {
		return err
	}

	if summary.Converted == 0 {
		logger.Warn("no messages converted", summary.LogAttrs()...)
	} else {
		logger.Info("conversion finished", summary.LogAttrs()...)
	}

	if cfg.Verify {
		count, err := archive.Count(cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("verify archive: %w", err)
		}
		if count != summary.Converted {
			return fmt.Errorf("%w: %d records in %s, %d converted", errVerifyMismatch, count, cfg.OutputPath, summary.Converted)
		}
		logger.Info("archive verified", "records", count)
	}

	return nil
}

func setupLogger(cfg config.Config, stdout io.Writer) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("eml-to-mbox-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(stdout, opts)
	return slog.New(handler), cleanup, nil
}
