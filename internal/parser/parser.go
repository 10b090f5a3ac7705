// Package parser defines the streaming coverage-parser contract and the
// format-detection dispatch that selects an implementation for a given
// input, generalizing the teacher's application.ProfileParser interface
// (whole-file map[string]Stat return) into per-file streaming emission.
package parser

import (
	"io"

	"github.com/covrs/covrs/internal/model"
)

// EmitFunc receives one FileCoverage record per source file, in the order
// files appear in the input. Implementations of Parser must call it exactly
// once per file and must not buffer the full file set in memory.
type EmitFunc func(model.FileCoverage) error

// Parser converts raw coverage-report bytes into a stream of FileCoverage
// records for a single source format.
type Parser interface {
	// Format returns the identity tag for this parser.
	Format() model.Format

	// CanParse performs a cheap check using the filename and/or the first
	// ~4KiB of content. It must not read the rest of the input.
	CanParse(path string, head []byte) bool

	// ParseStreaming pulls bytes incrementally from r and calls emit once
	// per source file it discovers, in appearance order. A file with zero
	// source files is not an error; it simply emits nothing.
	ParseStreaming(r io.Reader, emit EmitFunc) error
}
