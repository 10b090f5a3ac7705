// Package ingest orchestrates a single coverage-file ingestion: open the
// file, resolve its format (override or detection), stream-parse it,
// normalize paths against the project root, and stream the result into the
// store inside one transaction.
package ingest

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
	"github.com/covrs/covrs/internal/pathutil"
	"github.com/covrs/covrs/internal/store"
)

// Options mirrors spec's ingest configuration object: format_override,
// report_name, overwrite, project_root.
type Options struct {
	Path           string
	FormatOverride model.Format
	ReportName     string
	Overwrite      bool
	ProjectRoot    string
}

// target is the subset of Store this package depends on.
type target interface {
	Ingest(ctx context.Context, opts store.IngestOptions, produce store.FileProducer) error
}

// Run ingests the coverage file at opts.Path into st, using registry to
// resolve its format when opts.FormatOverride is FormatAuto or empty.
func Run(ctx context.Context, registry *parser.Registry, st target, opts Options, logger *zap.Logger) error {
	format := opts.FormatOverride
	if format == "" || format == model.FormatAuto {
		detected, err := registry.Detect(opts.Path)
		if err != nil {
			return err
		}
		format = detected
	}

	p, err := registry.Get(format)
	if err != nil {
		return err
	}

	cleanPath, err := pathutil.ValidatePath(opts.Path)
	if err != nil {
		return &coreerrors.IOError{Path: opts.Path, Err: err}
	}

	reportName := opts.ReportName
	if reportName == "" {
		reportName = cleanPath
	}

	fileCount := 0
	ingestOpts := store.IngestOptions{
		Name:         reportName,
		SourceFormat: format,
		SourceFile:   opts.Path,
		Overwrite:    opts.Overwrite,
	}

	err = st.Ingest(ctx, ingestOpts, func(emit func(model.FileCoverage) error) error {
		f, err := os.Open(cleanPath) // #nosec G304 - path validated above
		if err != nil {
			return &coreerrors.IOError{Path: opts.Path, Err: err}
		}
		defer f.Close()

		return p.ParseStreaming(f, func(fc model.FileCoverage) error {
			fc.Path = normalizePath(fc.Path, opts.ProjectRoot)
			fileCount++
			return emit(fc)
		})
	})
	if err != nil {
		return err
	}

	if fileCount == 0 {
		logger.Warn("ingest produced zero source files", zap.String("path", opts.Path), zap.String("report", reportName))
	}
	return nil
}

// normalizePath strips projectRoot from path when path is absolute and
// starts with it; relative paths and absolute paths outside projectRoot are
// left untouched, per spec's path-normalization rule.
func normalizePath(path, projectRoot string) string {
	if projectRoot == "" {
		return path
	}
	root := strings.TrimSuffix(projectRoot, "/")
	if !strings.HasPrefix(path, "/") {
		return path
	}
	if path == root {
		return ""
	}
	if strings.HasPrefix(path, root+"/") {
		return strings.TrimPrefix(path, root+"/")
	}
	return path
}
