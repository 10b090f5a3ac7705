// Package diffcoverage intersects a parsed diff's added lines with stored
// coverage to answer "which of the lines this patch touches are tested",
// and coalesces missed lines into compact ranges for reporting.
package diffcoverage

import (
	"context"
	"sort"

	"github.com/covrs/covrs/internal/diffparser"
)

// lineQuerier is the subset of store.Store this engine depends on, kept as
// an interface so the engine can be tested against a fake without a real
// database.
type lineQuerier interface {
	FileID(ctx context.Context, path string) (int64, bool, error)
	InstrumentableLinesBatched(ctx context.Context, fileID int64, lines []int, union bool) (covered, missed []int, err error)
	AllInstrumentableLines(ctx context.Context, fileID int64, union bool) ([]int, error)
	IsUnionMode(ctx context.Context) (bool, error)
}

// FileDiffCoverage reports, for one file, which of the diff's added lines
// were covered vs. missed, and the coalesced missed-line ranges.
type FileDiffCoverage struct {
	Path         string
	CoveredLines []int
	MissedLines  []int
	MissedRanges []Range
}

// Result is the overall diff-coverage computation, sorted by file path.
type Result struct {
	Files               []FileDiffCoverage
	TotalCovered        int
	TotalInstrumentable int
}

// Compute resolves each file in added against the store, partitions diff
// lines into covered/missed, and coalesces missed ranges. Files with zero
// instrumentable diff lines are omitted (not unknown files — skipped;
// known files with no overlap simply contribute nothing).
func Compute(ctx context.Context, store lineQuerier, added diffparser.AddedLines) (Result, error) {
	union, err := store.IsUnionMode(ctx)
	if err != nil {
		return Result{}, err
	}

	paths := make([]string, 0, len(added))
	for path := range added {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var res Result
	for _, path := range paths {
		fileID, known, err := store.FileID(ctx, path)
		if err != nil {
			return Result{}, err
		}
		if !known {
			continue
		}

		lines := added[path]
		covered, missed, err := store.InstrumentableLinesBatched(ctx, fileID, lines, union)
		if err != nil {
			return Result{}, err
		}
		if len(covered) == 0 && len(missed) == 0 {
			continue
		}

		allInstrumentable, err := store.AllInstrumentableLines(ctx, fileID, union)
		if err != nil {
			return Result{}, err
		}

		fc := FileDiffCoverage{
			Path:         path,
			CoveredLines: covered,
			MissedLines:  missed,
			MissedRanges: Coalesce(missed, allInstrumentable),
		}
		res.Files = append(res.Files, fc)
		res.TotalCovered += len(covered)
		res.TotalInstrumentable += len(covered) + len(missed)
	}

	return res, nil
}
