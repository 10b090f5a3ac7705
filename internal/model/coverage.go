// Package model defines the uniform in-memory coverage records produced by
// every format parser and consumed by the coverage store.
package model

// Format identifies a coverage report's source toolchain format.
type Format string

const (
	// FormatAuto means the format should be detected from content/extension.
	FormatAuto Format = "auto"
	// FormatLCOV is the LCOV line-prefixed ASCII format.
	FormatLCOV Format = "lcov"
	// FormatGoCover is the `go test -coverprofile` text format.
	FormatGoCover Format = "gocover"
	// FormatIstanbul is the Istanbul/NYC coverage-final.json format.
	FormatIstanbul Format = "istanbul"
	// FormatJaCoCo is the JaCoCo XML format.
	FormatJaCoCo Format = "jacoco"
	// FormatCobertura is the Cobertura XML format.
	FormatCobertura Format = "cobertura"
	// FormatClover is the Clover XML format.
	FormatClover Format = "clover"
)

// LineCoverage is one instrumentable source line and its hit count.
// Non-instrumentable lines (comments, blanks) are never represented.
type LineCoverage struct {
	LineNumber uint32
	HitCount   uint64
}

// BranchCoverage is one branch arm on a line. BranchIndex forms a dense
// 0-based sequence per (file, line).
type BranchCoverage struct {
	LineNumber  uint32
	BranchIndex uint32
	HitCount    uint64
}

// FunctionCoverage is one function/method declaration and its hit count.
// StartLine and EndLine are nil when the source format does not report them.
type FunctionCoverage struct {
	Name      string
	StartLine *uint32
	EndLine   *uint32
	HitCount  uint64
}

// FileCoverage is the uniform per-source-file coverage record emitted by
// every parser, exactly once per file, in file-appearance order.
type FileCoverage struct {
	Path      string
	Lines     []LineCoverage
	Branches  []BranchCoverage
	Functions []FunctionCoverage
}

// Uint32Ptr returns a pointer to v, for building optional FunctionCoverage
// line fields without a throwaway local variable at every call site.
func Uint32Ptr(v uint32) *uint32 {
	return &v
}
