package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
)

// Summary reports coverage totals for lines, branches, and functions.
type Summary struct {
	TotalLines       int64
	CoveredLines     int64
	TotalBranches    int64
	CoveredBranches  int64
	TotalFunctions   int64
	CoveredFunctions int64
}

// LineRate returns CoveredLines/TotalLines, or 0 when TotalLines is 0.
func (s Summary) LineRate() float64 {
	if s.TotalLines == 0 {
		return 0
	}
	return float64(s.CoveredLines) / float64(s.TotalLines)
}

// FileSummary pairs a source file's path with its Summary.
type FileSummary struct {
	Path string
	Summary
}

// ReportInfo describes one stored report.
type ReportInfo struct {
	Name         string
	SourceFormat string
	SourceFile   string
	CreatedAt    string
}

// LineEntry is one (line_number, effective hit_count) pair.
type LineEntry struct {
	LineNumber uint32
	HitCount   uint64
}

// reportCount returns how many reports are stored, used to pick between the
// direct-table and MAX(hit_count) GROUP BY query shapes.
func (s *Store) reportCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM report`).Scan(&n)
	if err != nil {
		return 0, &coreerrors.IOError{Err: err}
	}
	return n, nil
}

// lineSource returns the SQL source expression to select effective
// per-(file,line) hit counts from, applying union-of-reports semantics
// (MAX(hit_count) GROUP BY) when more than one report is stored.
func lineSource(union bool) string {
	if union {
		return `(SELECT source_file_id, line_number, MAX(hit_count) AS hit_count FROM line_coverage GROUP BY source_file_id, line_number)`
	}
	return `line_coverage`
}

func branchSource(union bool) string {
	if union {
		return `(SELECT source_file_id, line_number, branch_index, MAX(hit_count) AS hit_count FROM branch_coverage GROUP BY source_file_id, line_number, branch_index)`
	}
	return `branch_coverage`
}

func functionSource(union bool) string {
	if union {
		return `(SELECT source_file_id, name, start_line_key, MAX(hit_count) AS hit_count FROM function_coverage GROUP BY source_file_id, name, start_line_key)`
	}
	return `function_coverage`
}

// GetSummary returns totals across all stored reports. Fails with
// QueryPreconditionError if no reports are stored.
func (s *Store) GetSummary(ctx context.Context) (Summary, error) {
	count, err := s.reportCount(ctx)
	if err != nil {
		return Summary{}, err
	}
	if count == 0 {
		return Summary{}, &coreerrors.QueryPreconditionError{Msg: "no reports stored"}
	}
	union := count > 1

	var sum Summary
	lineQuery := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN hit_count > 0 THEN 1 ELSE 0 END), 0) FROM %s`, lineSource(union))
	if err := s.db.QueryRowContext(ctx, lineQuery).Scan(&sum.TotalLines, &sum.CoveredLines); err != nil {
		return Summary{}, &coreerrors.IOError{Err: err}
	}

	branchQuery := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN hit_count > 0 THEN 1 ELSE 0 END), 0) FROM %s`, branchSource(union))
	if err := s.db.QueryRowContext(ctx, branchQuery).Scan(&sum.TotalBranches, &sum.CoveredBranches); err != nil {
		return Summary{}, &coreerrors.IOError{Err: err}
	}

	fnQuery := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN hit_count > 0 THEN 1 ELSE 0 END), 0) FROM %s`, functionSource(union))
	if err := s.db.QueryRowContext(ctx, fnQuery).Scan(&sum.TotalFunctions, &sum.CoveredFunctions); err != nil {
		return Summary{}, &coreerrors.IOError{Err: err}
	}

	return sum, nil
}

// GetFileSummaries returns per-file summaries joined with source_file,
// sorted by path.
func (s *Store) GetFileSummaries(ctx context.Context) ([]FileSummary, error) {
	count, err := s.reportCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, &coreerrors.QueryPreconditionError{Msg: "no reports stored"}
	}
	union := count > 1

	query := fmt.Sprintf(`
		SELECT sf.path,
		       COUNT(lc.line_number),
		       COALESCE(SUM(CASE WHEN lc.hit_count > 0 THEN 1 ELSE 0 END), 0)
		FROM source_file sf
		JOIN %s lc ON lc.source_file_id = sf.id
		GROUP BY sf.id, sf.path
		ORDER BY sf.path
	`, lineSource(union))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &coreerrors.IOError{Err: err}
	}
	defer rows.Close()

	var out []FileSummary
	for rows.Next() {
		var fsum FileSummary
		if err := rows.Scan(&fsum.Path, &fsum.TotalLines, &fsum.CoveredLines); err != nil {
			return nil, &coreerrors.IOError{Err: err}
		}
		out = append(out, fsum)
	}
	if err := rows.Err(); err != nil {
		return nil, &coreerrors.IOError{Err: err}
	}

	branchQuery := fmt.Sprintf(`
		SELECT sf.path,
		       COUNT(bc.branch_index),
		       COALESCE(SUM(CASE WHEN bc.hit_count > 0 THEN 1 ELSE 0 END), 0)
		FROM source_file sf
		JOIN %s bc ON bc.source_file_id = sf.id
		GROUP BY sf.id, sf.path
	`, branchSource(union))
	branchByPath := make(map[string][2]int64)
	brows, err := s.db.QueryContext(ctx, branchQuery)
	if err != nil {
		return nil, &coreerrors.IOError{Err: err}
	}
	defer brows.Close()
	for brows.Next() {
		var path string
		var total, covered int64
		if err := brows.Scan(&path, &total, &covered); err != nil {
			return nil, &coreerrors.IOError{Err: err}
		}
		branchByPath[path] = [2]int64{total, covered}
	}

	for i := range out {
		if b, ok := branchByPath[out[i].Path]; ok {
			out[i].TotalBranches = b[0]
			out[i].CoveredBranches = b[1]
		}
	}

	return out, nil
}

// GetFileLineRate returns the line coverage rate for a single file, or
// (0, false) if the file is unknown to the store.
func (s *Store) GetFileLineRate(ctx context.Context, path string) (float64, bool, error) {
	count, err := s.reportCount(ctx)
	if err != nil {
		return 0, false, err
	}
	union := count > 1

	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN lc.hit_count > 0 THEN 1 ELSE 0 END), 0)
		FROM source_file sf
		JOIN %s lc ON lc.source_file_id = sf.id
		WHERE sf.path = ?
	`, lineSource(union))

	var total, covered int64
	if err := s.db.QueryRowContext(ctx, query, path).Scan(&total, &covered); err != nil {
		return 0, false, &coreerrors.IOError{Err: err}
	}
	if total == 0 {
		if _, known, err := s.fileKnown(ctx, path); err != nil || !known {
			return 0, false, err
		}
		return 0, true, nil
	}
	return float64(covered) / float64(total), true, nil
}

func (s *Store) fileKnown(ctx context.Context, path string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM source_file WHERE path = ?`, path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &coreerrors.IOError{Err: err}
	}
	return id, true, nil
}

// GetLines returns the ordered (line_number, effective hit_count) pairs for
// a file. Returns QueryPreconditionError if the file is unknown.
func (s *Store) GetLines(ctx context.Context, path string) ([]LineEntry, error) {
	_, known, err := s.fileKnown(ctx, path)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, &coreerrors.QueryPreconditionError{Msg: "unknown file: " + path}
	}

	count, err := s.reportCount(ctx)
	if err != nil {
		return nil, err
	}
	union := count > 1

	query := fmt.Sprintf(`
		SELECT lc.line_number, lc.hit_count
		FROM source_file sf
		JOIN %s lc ON lc.source_file_id = sf.id
		WHERE sf.path = ?
		ORDER BY lc.line_number
	`, lineSource(union))

	rows, err := s.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, &coreerrors.IOError{Err: err}
	}
	defer rows.Close()

	var out []LineEntry
	for rows.Next() {
		var e LineEntry
		if err := rows.Scan(&e.LineNumber, &e.HitCount); err != nil {
			return nil, &coreerrors.IOError{Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListReports returns all stored reports ordered by creation time.
func (s *Store) ListReports(ctx context.Context) ([]ReportInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, source_format, COALESCE(source_file, ''), created_at FROM report ORDER BY created_at`)
	if err != nil {
		return nil, &coreerrors.IOError{Err: err}
	}
	defer rows.Close()

	var out []ReportInfo
	for rows.Next() {
		var r ReportInfo
		if err := rows.Scan(&r.Name, &r.SourceFormat, &r.SourceFile, &r.CreatedAt); err != nil {
			return nil, &coreerrors.IOError{Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InstrumentableLinesBatched returns, for a file, the subset of `lines`
// present in the effective coverage set, partitioned by hit_count > 0 vs
// == 0. Queries are batched at ≤500 parameters per IN(...) clause.
func (s *Store) InstrumentableLinesBatched(ctx context.Context, fileID int64, lines []int, union bool) (covered, missed []int, err error) {
	const maxBatch = 500
	src := lineSource(union)

	for start := 0; start < len(lines); start += maxBatch {
		end := start + maxBatch
		if end > len(lines) {
			end = len(lines)
		}
		chunk := lines[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)+1)
		args = append(args, fileID)
		for i, ln := range chunk {
			placeholders[i] = "?"
			args = append(args, ln)
		}

		query := fmt.Sprintf(`
			SELECT line_number, hit_count FROM %s
			WHERE source_file_id = ? AND line_number IN (%s)
		`, src, strings.Join(placeholders, ","))

		rows, qerr := s.db.QueryContext(ctx, query, args...)
		if qerr != nil {
			return nil, nil, &coreerrors.IOError{Err: qerr}
		}
		func() {
			defer rows.Close()
			for rows.Next() {
				var ln int
				var hit int64
				if serr := rows.Scan(&ln, &hit); serr != nil {
					err = &coreerrors.IOError{Err: serr}
					return
				}
				if hit > 0 {
					covered = append(covered, ln)
				} else {
					missed = append(missed, ln)
				}
			}
		}()
		if err != nil {
			return nil, nil, err
		}
	}

	sort.Ints(covered)
	sort.Ints(missed)
	return covered, missed, nil
}

// AllInstrumentableLines returns every instrumentable line number for a
// file, sorted ascending — used by the range coalescer to know which gaps
// between missed lines are bridgeable.
func (s *Store) AllInstrumentableLines(ctx context.Context, fileID int64, union bool) ([]int, error) {
	query := fmt.Sprintf(`SELECT line_number FROM %s WHERE source_file_id = ? ORDER BY line_number`, lineSource(union))
	rows, err := s.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, &coreerrors.IOError{Err: err}
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var ln int
		if err := rows.Scan(&ln); err != nil {
			return nil, &coreerrors.IOError{Err: err}
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

// FileID resolves a path to its source_file id, reporting whether it's known.
func (s *Store) FileID(ctx context.Context, path string) (int64, bool, error) {
	return s.fileKnown(ctx, path)
}

// IsUnionMode reports whether the store currently holds more than one
// report, the precondition for applying union-of-reports query semantics.
func (s *Store) IsUnionMode(ctx context.Context) (bool, error) {
	count, err := s.reportCount(ctx)
	if err != nil {
		return false, err
	}
	return count > 1, nil
}
