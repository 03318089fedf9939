package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dhcgn/eml-to-mbox/archive"
	"github.com/dhcgn/eml-to-mbox/filter"
	"github.com/dhcgn/eml-to-mbox/stats"
)

var trackedHeaders = []string{"From", "Subject", "To", "Delivered-To"}

type inspectOptions struct {
	reportDir     string
	topN          int
	csvLimit      int
	includeHeader []string
	includeBody   []string
	excludeHeader []string
	excludeBody   []string
}

// NewInspectCommand returns the "inspect" subcommand, which summarises an
// existing mbox archive.
func NewInspectCommand() *cobra.Command {
	opts := &inspectOptions{csvLimit: 1000}

	cmd := &cobra.Command{
		Use:   "inspect [mbox file]",
		Short: "Show the most frequent senders, subjects and recipients of an mbox archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&opts.topN, "top", "t", 10, "Number of top items to display")
	flags.StringArrayVar(&opts.includeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.includeBody, "include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.excludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&opts.excludeBody, "exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return cmd
}

func runInspect(out io.Writer, mboxPath string, opts *inspectOptions) error {
	filterOpts := filter.Options{
		IncludeHeader: opts.includeHeader,
		IncludeBody:   opts.includeBody,
		ExcludeHeader: opts.excludeHeader,
		ExcludeBody:   opts.excludeBody,
	}
	f, err := filter.New(filterOpts)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}

	info, err := os.Stat(mboxPath)
	if err != nil {
		return fmt.Errorf("stat mbox: %w", err)
	}
	fmt.Fprintf(out, "Analyzing %s (%s)\n", mboxPath, humanize.Bytes(uint64(info.Size())))

	counter := make(map[string]map[string]int, len(trackedHeaders))
	for _, h := range trackedHeaders {
		counter[h] = make(map[string]int)
	}

	live := isTerminal(out)
	messageCount, filteredCount := 0, 0
	printStats := func() {
		if live {
			fmt.Fprint(out, "\033[H\033[2J")
		}
		fmt.Fprintf(out, "Processed %d messages (skipped %d by filters)\n\n", messageCount, filteredCount)
		printFilterStats(out, f.GetStats())
		for _, header := range trackedHeaders {
			fmt.Fprintf(out, "Top %d %s:\n", opts.topN, header)
			stats.PrettyPrintTop(out, counter[header], opts.topN)
			fmt.Fprintln(out)
		}
	}

	unparsable, err := archive.Read(mboxPath, func(m *archive.Message) error {
		if !f.Allows([]byte(formatHeaders(m.Headers)), m.Body) {
			filteredCount++
			return nil
		}

		messageCount++
		for _, name := range trackedHeaders {
			if value := m.Headers.Get(name); value != "" {
				counter[name][value]++
			}
		}

		if live && messageCount%250 == 0 {
			printStats()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read mbox: %w", err)
	}

	printStats()
	if unparsable > 0 {
		fmt.Fprintf(out, "Unparsable records: %d\n", unparsable)
	}

	if err := saveCSVReports(counter, opts.reportDir, opts.csvLimit); err != nil {
		return fmt.Errorf("save CSV reports: %w", err)
	}
	fmt.Fprintf(out, "Reports saved to directory: %s\n", opts.reportDir)

	return nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd())
}

func saveCSVReports(counter map[string]map[string]int, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, header := range trackedHeaders {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(header)))
		if err := writeCSVReport(filePath, stats.TopN(counter[header], limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVReport(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}

// formatHeaders renders headers in a stable order for the filter.
func formatHeaders(headers map[string][]string) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		for _, value := range headers[key] {
			sb.WriteString(key)
			sb.WriteString(": ")
			sb.WriteString(value)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func printFilterStats(out io.Writer, s filter.Stats) {
	sections := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", s.IncludeHeaderPatterns, s.IncludeHeaderHits},
		{"Include Body Filters", s.IncludeBodyPatterns, s.IncludeBodyHits},
		{"Exclude Header Filters", s.ExcludeHeaderPatterns, s.ExcludeHeaderHits},
		{"Exclude Body Filters", s.ExcludeBodyPatterns, s.ExcludeBodyHits},
	}

	printed := false
	for _, sec := range sections {
		if len(sec.patterns) == 0 {
			continue
		}
		printed = true
		fmt.Fprintf(out, "%s:\n", sec.title)
		printFilterHits(out, sec.patterns, sec.hits)
		fmt.Fprintln(out)
	}
	if printed {
		fmt.Fprintln(out, "---")
		fmt.Fprintln(out)
	}
}

func printFilterHits(out io.Writer, patterns []string, hits map[string]int) {
	counts := make(map[string]int, len(patterns))
	for _, pattern := range patterns {
		counts[pattern] = hits[pattern]
	}

	for _, p := range stats.TopN(counts, -1) {
		mark := "✓"
		if p.Value == 0 {
			mark = "✗"
		}
		fmt.Fprintf(out, "  %s %s: %d hits\n", mark, p.Key, p.Value)
	}
}
