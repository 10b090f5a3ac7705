package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
)

// FileProducer streams FileCoverage records to the given callback, mirroring
// the Parser.ParseStreaming contract so the store never needs the full
// CoverageData resident in memory.
type FileProducer func(emit func(model.FileCoverage) error) error

// IngestOptions controls a single report insertion.
type IngestOptions struct {
	Name         string
	SourceFormat model.Format
	SourceFile   string
	Overwrite    bool
}

// Ingest inserts one report by draining produce's file stream, batching
// line/branch/function rows into multi-row statements inside a single
// transaction. If Overwrite is set, any existing report with the same name
// is deleted first (and its orphaned source_file rows purged) inside the
// same transaction.
func (s *Store) Ingest(ctx context.Context, opts IngestOptions, produce FileProducer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &coreerrors.IOError{Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if opts.Overwrite {
		if err := deleteReportTx(ctx, tx, opts.Name); err != nil {
			return err
		}
	}

	var reportID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO report (name, source_format, source_file) VALUES (?, ?, ?) RETURNING id`,
		opts.Name, string(opts.SourceFormat), nullable(opts.SourceFile),
	).Scan(&reportID)
	if err != nil {
		if isUniqueViolation(err) {
			return &coreerrors.ConstraintError{Msg: "report already exists: " + opts.Name}
		}
		return &coreerrors.IOError{Err: err}
	}

	batch := newRowBatch(tx, reportID)

	err = produce(func(fc model.FileCoverage) error {
		fileID, err := batch.fileID(ctx, fc.Path)
		if err != nil {
			return err
		}
		for _, l := range fc.Lines {
			if err := batch.addLine(ctx, fileID, l); err != nil {
				return err
			}
		}
		for _, b := range fc.Branches {
			if err := batch.addBranch(ctx, fileID, b); err != nil {
				return err
			}
		}
		for _, f := range fc.Functions {
			if err := batch.addFunction(ctx, fileID, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := batch.flushAll(ctx); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteReport removes a report and purges any source_file rows left
// unreferenced by any remaining report, in a single transaction.
func (s *Store) DeleteReport(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &coreerrors.IOError{Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteReportTx(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteReportTx(ctx context.Context, tx *sql.Tx, name string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM report WHERE name = ?`, name)
	if err != nil {
		return &coreerrors.IOError{Err: err}
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM source_file
		WHERE id NOT IN (SELECT DISTINCT source_file_id FROM line_coverage)
		  AND id NOT IN (SELECT DISTINCT source_file_id FROM branch_coverage)
		  AND id NOT IN (SELECT DISTINCT source_file_id FROM function_coverage)
	`)
	if err != nil {
		return &coreerrors.IOError{Err: err}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rowBatch accumulates pending line/branch/function rows for one ingest and
// flushes each kind once it reaches batchSize, as well as a final flushAll
// at the end of the stream.
type rowBatch struct {
	tx       *sql.Tx
	reportID int64

	fileIDs map[string]int64

	pendingLines     []lineRow
	pendingBranches  []branchRow
	pendingFunctions []functionRow
}

type lineRow struct {
	fileID   int64
	lineNum  uint32
	hitCount uint64
}

type branchRow struct {
	fileID      int64
	lineNum     uint32
	branchIndex uint32
	hitCount    uint64
}

type functionRow struct {
	fileID    int64
	name      string
	startLine *uint32
	endLine   *uint32
	hitCount  uint64
}

func newRowBatch(tx *sql.Tx, reportID int64) *rowBatch {
	return &rowBatch{tx: tx, reportID: reportID, fileIDs: make(map[string]int64)}
}

func (b *rowBatch) fileID(ctx context.Context, path string) (int64, error) {
	if id, ok := b.fileIDs[path]; ok {
		return id, nil
	}

	var id int64
	err := b.tx.QueryRowContext(ctx,
		`INSERT INTO source_file (path) VALUES (?) ON CONFLICT(path) DO UPDATE SET path = excluded.path RETURNING id`,
		path,
	).Scan(&id)
	if err != nil {
		return 0, &coreerrors.IOError{Path: path, Err: err}
	}
	b.fileIDs[path] = id
	return id, nil
}

func (b *rowBatch) addLine(ctx context.Context, fileID int64, l model.LineCoverage) error {
	b.pendingLines = append(b.pendingLines, lineRow{fileID: fileID, lineNum: l.LineNumber, hitCount: l.HitCount})
	if len(b.pendingLines) >= batchSize {
		return b.flushLines(ctx)
	}
	return nil
}

func (b *rowBatch) addBranch(ctx context.Context, fileID int64, br model.BranchCoverage) error {
	b.pendingBranches = append(b.pendingBranches, branchRow{fileID: fileID, lineNum: br.LineNumber, branchIndex: br.BranchIndex, hitCount: br.HitCount})
	if len(b.pendingBranches) >= batchSize {
		return b.flushBranches(ctx)
	}
	return nil
}

func (b *rowBatch) addFunction(ctx context.Context, fileID int64, f model.FunctionCoverage) error {
	b.pendingFunctions = append(b.pendingFunctions, functionRow{fileID: fileID, name: f.Name, startLine: f.StartLine, endLine: f.EndLine, hitCount: f.HitCount})
	if len(b.pendingFunctions) >= batchSize {
		return b.flushFunctions(ctx)
	}
	return nil
}

func (b *rowBatch) flushAll(ctx context.Context) error {
	if err := b.flushLines(ctx); err != nil {
		return err
	}
	if err := b.flushBranches(ctx); err != nil {
		return err
	}
	return b.flushFunctions(ctx)
}

func (b *rowBatch) flushLines(ctx context.Context) error {
	if len(b.pendingLines) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO line_coverage (report_id, source_file_id, line_number, hit_count) VALUES `)
	args := make([]any, 0, len(b.pendingLines)*4)
	for i, r := range b.pendingLines {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?)")
		args = append(args, b.reportID, r.fileID, r.lineNum, r.hitCount)
	}
	sb.WriteString(` ON CONFLICT(report_id, source_file_id, line_number) DO UPDATE SET hit_count = excluded.hit_count`)

	if _, err := b.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return &coreerrors.IOError{Err: err}
	}
	b.pendingLines = b.pendingLines[:0]
	return nil
}

func (b *rowBatch) flushBranches(ctx context.Context) error {
	if len(b.pendingBranches) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO branch_coverage (report_id, source_file_id, line_number, branch_index, hit_count) VALUES `)
	args := make([]any, 0, len(b.pendingBranches)*5)
	for i, r := range b.pendingBranches {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, b.reportID, r.fileID, r.lineNum, r.branchIndex, r.hitCount)
	}
	sb.WriteString(` ON CONFLICT(report_id, source_file_id, line_number, branch_index) DO UPDATE SET hit_count = excluded.hit_count`)

	if _, err := b.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return &coreerrors.IOError{Err: err}
	}
	b.pendingBranches = b.pendingBranches[:0]
	return nil
}

func (b *rowBatch) flushFunctions(ctx context.Context) error {
	if len(b.pendingFunctions) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO function_coverage (report_id, source_file_id, name, start_line, start_line_key, end_line, hit_count) VALUES `)
	args := make([]any, 0, len(b.pendingFunctions)*7)
	for i, r := range b.pendingFunctions {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?)")
		args = append(args, b.reportID, r.fileID, r.name, nullableUint32(r.startLine), startLineKey(r.startLine), nullableUint32(r.endLine), r.hitCount)
	}
	sb.WriteString(` ON CONFLICT(report_id, source_file_id, name, start_line_key) DO UPDATE SET hit_count = excluded.hit_count, end_line = excluded.end_line`)

	if _, err := b.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return &coreerrors.IOError{Err: err}
	}
	b.pendingFunctions = b.pendingFunctions[:0]
	return nil
}

func nullableUint32(v *uint32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
