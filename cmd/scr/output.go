package main

import (
	"fmt"
	"io"
	"os"

	"github.com/advocadabra/scr/internal/retrieval"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printResults writes a human-readable ranking to w.
func printResults(w io.Writer, results []retrieval.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No similar cases found.")
		return
	}
	for i, r := range results {
		head := colorize(colorBold, fmt.Sprintf("%d. %s", i+1, r.CaseID))
		fmt.Fprintf(w, "\n%s [score: %.4f]\n", head, r.Score)
		if r.TextSample != "" {
			fmt.Fprintf(w, "   %s\n", r.TextSample)
		}
	}
}

// progressPrinter returns a callback that reports embedding progress on
// stderr at most once per percent.
func progressPrinter(label string) func(done, total int) {
	last := -1
	return func(done, total int) {
		if total == 0 {
			return
		}
		pct := done * 100 / total
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(os.Stderr, "\r%s %d/%d (%d%%)", label, done, total, pct)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}
