// Package tui renders run reports, run history and archive listings for the
// terminal. Output is plain line-oriented text styled with lipgloss.
package tui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/rawgate/pkg/checkpoint"
	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/quarantine"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintRunReport prints the outcome of a pipeline run.
func PrintRunReport(w io.Writer, rep *pipeline.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ "+strings.ToUpper(rep.Variant.Title())+" RUN COMPLETE"))
	fmt.Fprintln(w, mutedStyle.Render("  run "+rep.RunID))
	fmt.Fprintln(w)

	field(w, "Loaded:", fmt.Sprintf("%d files, %s rows", len(rep.GoodFiles), formatNumber(rep.RowsLoaded)))
	field(w, "Rejected:", fmt.Sprintf("%d files", len(rep.BadFiles)))
	if rep.CellsNormalized > 0 {
		field(w, "Nulls:", fmt.Sprintf("%s cells set to NULL", formatNumber(int64(rep.CellsNormalized))))
	}
	field(w, "Time:", formatDuration(rep.Duration))

	if len(rep.Rejections) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, accentStyle.Render("▸ REJECTED"))
		for _, r := range rep.Rejections {
			fmt.Fprintf(w, "  %s %s %s\n", accentStyle.Render("✗"), r.File, mutedStyle.Render("["+r.Stage+"] "+r.Reason))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render(rule))
	if rep.ExportPath != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Export:"), codeStyle.Render(rep.ExportPath))
	}
	if rep.ParquetPath != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Parquet:"), codeStyle.Render(rep.ParquetPath))
	}
	if rep.ArchiveFolder != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Archive:"), codeStyle.Render(rep.ArchiveFolder))
	}
	for _, key := range rep.Uploaded {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Uploaded:"), key)
	}
	fmt.Fprintln(w, mutedStyle.Render(rule))
	fmt.Fprintln(w)
}

// PrintRuns prints run history, newest first.
func PrintRuns(w io.Writer, runs []*checkpoint.Checkpoint) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No runs recorded."))
		return
	}
	fmt.Fprintln(w, accentStyle.Render("▸ RUNS"))
	for _, cp := range runs {
		mark := successStyle.Render("✓")
		switch {
		case cp.Phase == checkpoint.PhaseFailed:
			mark = accentStyle.Render("✗")
		case !cp.Phase.Terminal():
			mark = mutedStyle.Render("…")
		}
		fmt.Fprintf(w, "  %s %s %-10s %-14s %s rows %s\n",
			mark,
			cp.StartedAt.Format("2006-01-02 15:04:05"),
			cp.Variant,
			cp.Phase,
			formatNumber(cp.RowsLoaded),
			mutedStyle.Render(cp.ID),
		)
		if cp.Error != "" {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render(cp.Error))
		}
	}
}

// PrintArchives prints archive folders, newest first.
func PrintArchives(w io.Writer, folders []quarantine.FolderInfo) {
	if len(folders) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No archived batches."))
		return
	}
	fmt.Fprintln(w, accentStyle.Render("▸ ARCHIVES"))
	for _, f := range folders {
		fmt.Fprintf(w, "  %s %s %s\n",
			titleStyle.Render(f.Name),
			fmt.Sprintf("%d files", f.Files),
			mutedStyle.Render(filepath.Dir(f.Path)))
	}
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-9s", label)), titleStyle.Render(value))
}

// LoadProgress returns a progress callback for total Good files, drawing a
// bar on w.
func LoadProgress(w io.Writer, total int) func(file string, rows int) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("  loading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return func(file string, rows int) {
		bar.Describe("  " + file)
		bar.Add(1)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
