package progress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"github.com/dhcgn/eml-to-mbox/stats"
)

// Enabled reports whether a progress bar should be drawn: only at info
// level, only on a terminal, and only if not switched off.
func Enabled(logLevel string, noProgress bool) bool {
	if noProgress || logLevel != "info" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Bar manages a progress bar for tracking file conversion.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	scanned int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar over total input files. A disabled bar
// ignores all updates.
func New(total int, enabled bool) *Bar {
	bar := &Bar{
		total:   total,
		enabled: enabled && total > 0,
	}

	if bar.enabled {
		pterm.SetDefaultOutput(colorable.NewColorableStdout())
		pterm.Info.Printf("Input files: %d\n", total)

		pb, err := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Converting messages").
			Start()
		if err != nil {
			bar.enabled = false
			return bar
		}
		bar.pb = pb
	}

	return bar
}

// Update advances the bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.scanned++
		b.pb.Increment()
		if evt.Path != "" {
			name := filepath.Base(evt.Path)
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			b.pb.UpdateTitle("Converting: " + name)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("%s: %v\n", filepath.Base(evt.Path), evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	_, _ = b.pb.Stop()
}

// Subscriber feeds the bar from a stats event stream and stops it once the
// stream ends.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter draws the bar and prints a summary table when done.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	started   time.Time
}

// NewProgressReporter subscribes the bar and a summary printer to stream.
// Nothing is subscribed when the bar is disabled.
func NewProgressReporter(stream stats.EventStream, bar *Bar) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	summary := pr.collector.Snapshot()
	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", time.Since(pr.started).Round(time.Millisecond))
	pterm.Info.Printf("Converted: %d\n", summary.Converted)
	pterm.Info.Printf("Failed: %d\n", summary.Failed)
	if summary.Filtered > 0 {
		pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	}
	if summary.Duplicates > 0 {
		pterm.Info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
	}
	pterm.Info.Printf("Written: %s\n", humanize.Bytes(uint64(summary.Bytes)))
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}

	return nil
}

// Summary returns the counts seen by the progress reporter.
func (pr *ProgressReporter) Summary() stats.Summary {
	return pr.collector.Snapshot()
}
