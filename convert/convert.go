// Package convert wires the eml producer, the runner and the archive writer
// into a single conversion run.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhcgn/eml-to-mbox/archive"
	"github.com/dhcgn/eml-to-mbox/config"
	"github.com/dhcgn/eml-to-mbox/eml"
	"github.com/dhcgn/eml-to-mbox/filter"
	"github.com/dhcgn/eml-to-mbox/progress"
	"github.com/dhcgn/eml-to-mbox/runner"
	"github.com/dhcgn/eml-to-mbox/stats"
)

type Options struct {
	Config config.Config
	// Paths are converted in the given order.
	Paths []string
	// Now overrides the clock used for envelopes without a usable Date.
	Now func() time.Time
}

// Run converts opts.Paths into the archive at opts.Config.OutputPath. Per-file
// failures are part of the returned summary; the error is only set for fatal
// conditions such as a failing destination.
func Run(ctx context.Context, opts Options, logger *slog.Logger) (stats.Summary, error) {
	cfg := opts.Config

	r := runner.New(ctx, cfg, logger)
	reporter := stats.NewReporter(r, logger)

	bar := progress.New(len(opts.Paths), progress.Enabled(cfg.LogLevel, cfg.NoProgress))
	progress.NewProgressReporter(r, bar)

	readerOpts := eml.Options{
		Paths: opts.Paths,
		Filter: filter.Options{
			IncludeHeader: cfg.IncludeHeader,
			IncludeBody:   cfg.IncludeBody,
			ExcludeHeader: cfg.ExcludeHeader,
			ExcludeBody:   cfg.ExcludeBody,
		},
		Now: opts.Now,
	}
	if _, err := eml.NewProducer(readerOpts, r, logger); err != nil {
		return stats.Summary{}, fmt.Errorf("eml.NewProducer: %w", err)
	}

	if _, err := archive.NewArchiver(archive.Options{Path: cfg.OutputPath}, r, logger); err != nil {
		return stats.Summary{}, fmt.Errorf("archive.NewArchiver: %w", err)
	}

	err := r.Start()
	return reporter.Summary(), err
}
