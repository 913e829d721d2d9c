package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// isInteractive reports whether stderr is attached to a terminal. No
// command calls it: events and the trailing progress summary are written
// the same way whether or not output is piped.
func isInteractive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// parseTimeSpec parses a time_spec argument into microseconds since the Unix epoch. Accepts
// RFC3339 ("2025-01-02T15:04:05Z"), a bare Unix timestamp in seconds, or
// "@<unix-seconds>".
func parseTimeSpec(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time_spec")
	}

	trimmed := strings.TrimPrefix(s, "@")

	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return secs * int64(time.Second/time.Microsecond), nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("time_spec %q is neither RFC3339 nor a Unix timestamp: %w", s, err)
	}

	return t.UnixMicro(), nil
}

// formatMicros renders a recorded_at value for display.
func formatMicros(us int64) string {
	return time.UnixMicro(us).Local().Format(time.RFC3339)
}

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
