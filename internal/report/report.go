// Package report renders a DiffCoverageReport as text or markdown and
// builds CI annotation records from it, following the teacher's
// writer.go approach of a tabwriter-based text renderer plus terminal
// color detection.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"

	"github.com/covrs/covrs/internal/diffcoverage"
)

// FileDetail is one file's entry in a DiffCoverageReport, carrying the
// engine's result plus an optional overall file line rate.
type FileDetail struct {
	diffcoverage.FileDiffCoverage
	FileLineRate *float64
}

// DiffCoverageReport is the complete input to the formatter.
type DiffCoverageReport struct {
	Files               []FileDetail
	TotalCovered        int
	TotalInstrumentable int
	DiffFileCount       int
	ProjectLineRate     *float64
	CommitSHA           string
}

// rate returns TotalCovered/TotalInstrumentable, or 0 when there are no
// instrumentable lines.
func (r DiffCoverageReport) rate() float64 {
	if r.TotalInstrumentable == 0 {
		return 0
	}
	return float64(r.TotalCovered) / float64(r.TotalInstrumentable)
}

func (r DiffCoverageReport) sortedByRate() []FileDetail {
	files := make([]FileDetail, len(r.Files))
	copy(files, r.Files)
	sort.SliceStable(files, func(i, j int) bool {
		return fileRate(files[i]) < fileRate(files[j])
	})
	return files
}

func fileRate(f FileDetail) float64 {
	total := len(f.CoveredLines) + len(f.MissedLines)
	if total == 0 {
		return 1
	}
	return float64(len(f.CoveredLines)) / float64(total)
}

const (
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorReset = "\x1b[0m"
)

func colorize(s, code string, enabled bool) string {
	if !enabled {
		return s
	}
	return code + s + colorReset
}

// WriteText renders the report as plain text to w, colorizing the summary
// line and missed-range counts when w is a color-capable terminal.
func WriteText(w io.Writer, r DiffCoverageReport) error {
	color := ColorEnabled(w)

	if len(r.Files) == 0 {
		if r.DiffFileCount == 0 {
			_, err := fmt.Fprintln(w, "No added lines found")
			return err
		}
		_, err := fmt.Fprintf(w, "%d lines added across %d files — none are instrumentable\n", r.TotalCovered+r.TotalInstrumentable, r.DiffFileCount)
		return err
	}

	if r.TotalCovered == r.TotalInstrumentable {
		summary := fmt.Sprintf("All %d added lines are covered!", r.TotalInstrumentable)
		if _, err := fmt.Fprintf(w, "%s\n\n", colorize(summary, colorGreen, color)); err != nil {
			return err
		}
	} else {
		summary := fmt.Sprintf("Diff coverage: %.1f%% (%d/%d lines)", r.rate()*100, r.TotalCovered, r.TotalInstrumentable)
		if _, err := fmt.Fprintf(w, "%s\n\n", colorize(summary, colorRed, color)); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "File\tCovered\tMissed\tMissed Ranges")
	for _, f := range r.sortedByRate() {
		ranges := formatRanges(f.MissedRanges, "", "")
		missed := fmt.Sprintf("%d", len(f.MissedLines))
		if len(f.MissedLines) > 0 {
			missed = colorize(missed, colorRed, color)
			ranges = colorize(ranges, colorRed, color)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", f.Path, len(f.CoveredLines), missed, ranges)
	}
	return tw.Flush()
}

// WriteMarkdown renders the report as markdown to w, with a level-3
// heading, an optional short commit SHA, a file table sorted ascending by
// rate, and a details block with missed ranges. When CommitSHA is set,
// ranges render as hyperlinks to the blob at that commit.
func WriteMarkdown(w io.Writer, r DiffCoverageReport) error {
	var sb strings.Builder

	sb.WriteString("### Diff Coverage")
	if r.CommitSHA != "" {
		sha := r.CommitSHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		sb.WriteString(fmt.Sprintf(" (`%s`)", sha))
	}
	sb.WriteString("\n\n")

	if len(r.Files) == 0 {
		if r.DiffFileCount == 0 {
			sb.WriteString("No added lines found\n")
		} else {
			sb.WriteString(fmt.Sprintf("%d lines added across %d files — none are instrumentable\n", r.TotalCovered+r.TotalInstrumentable, r.DiffFileCount))
		}
		_, err := io.WriteString(w, sb.String())
		return err
	}

	if r.TotalCovered == r.TotalInstrumentable {
		sb.WriteString(fmt.Sprintf("All %d added lines are covered!\n\n", r.TotalInstrumentable))
	} else {
		sb.WriteString(fmt.Sprintf("**%.1f%%** (%d/%d lines)\n\n", r.rate()*100, r.TotalCovered, r.TotalInstrumentable))
	}

	sb.WriteString("| File | Covered | Missed | Rate |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, f := range r.sortedByRate() {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.1f%% |\n", f.Path, len(f.CoveredLines), len(f.MissedLines), fileRate(f)*100))
	}

	hasMissed := false
	for _, f := range r.Files {
		if len(f.MissedRanges) > 0 {
			hasMissed = true
			break
		}
	}
	if hasMissed {
		sb.WriteString("\n<details><summary>Missed lines</summary>\n\n")
		for _, f := range r.sortedByRate() {
			if len(f.MissedRanges) == 0 {
				continue
			}
			ranges := formatRanges(f.MissedRanges, f.Path, r.CommitSHA)
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", f.Path, ranges))
		}
		sb.WriteString("\n</details>\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// formatRanges renders ranges as "1-5, 8, 10-12", hyperlinked to the blob
// at sha when non-empty.
func formatRanges(ranges []diffcoverage.Range, path, sha string) string {
	parts := make([]string, len(ranges))
	for i, rg := range ranges {
		var label string
		if rg.Start == rg.End {
			label = fmt.Sprintf("%d", rg.Start)
		} else {
			label = fmt.Sprintf("%d-%d", rg.Start, rg.End)
		}
		if sha != "" && path != "" {
			parts[i] = fmt.Sprintf("[%s](../blob/%s/%s#L%d-L%d)", label, sha, path, rg.Start, rg.End)
		} else {
			parts[i] = label
		}
	}
	return strings.Join(parts, ", ")
}

// ColorEnabled reports whether w is a terminal that supports color output,
// honoring NO_COLOR.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
