// Package lcov implements a streaming parser for the LCOV coverage format,
// used by gcov/lcov itself and by pytest-cov, nyc/c8/Jest, and most Ruby and
// PHP coverage tools when configured for LCOV output.
package lcov

import (
	"bufio"
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
)

// Parser implements parser.Parser for LCOV .info files.
type Parser struct{}

// New creates a new LCOV parser.
func New() *Parser { return &Parser{} }

// Format returns model.FormatLCOV.
func (p *Parser) Format() model.Format { return model.FormatLCOV }

// CanParse accepts .info/.lcov extensions outright, and otherwise sniffs
// the head for both an SF: and a DA: line — LCOV's two defining markers.
func (p *Parser) CanParse(path string, head []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".info" || ext == ".lcov" {
		return true
	}
	return hasSFAndDA(head)
}

func hasSFAndDA(content []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	var hasSF, hasDA bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "SF:") {
			hasSF = true
		}
		if strings.HasPrefix(line, "DA:") {
			hasDA = true
		}
		if hasSF && hasDA {
			return true
		}
	}
	return false
}

// fileState accumulates the current SF: record until end_of_record (or EOF).
type fileState struct {
	path          string
	lines         []model.LineCoverage
	branches      []model.BranchCoverage
	functions     []model.FunctionCoverage
	branchIndex   map[uint32]uint32
	pendingStarts map[string]*uint32
}

func newFileState(path string) *fileState {
	return &fileState{
		path:          path,
		branchIndex:   make(map[uint32]uint32),
		pendingStarts: make(map[string]*uint32),
	}
}

// ParseStreaming reads LCOV records line by line, emitting one FileCoverage
// per SF:/end_of_record block (or at EOF for a record missing its
// terminator), in file-appearance order.
func (p *Parser) ParseStreaming(r io.Reader, emit parser.EmitFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cur *fileState

	flush := func() error {
		if cur == nil {
			return nil
		}
		fc := cur.toFileCoverage()
		cur = nil
		return emit(fc)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "SF:"):
			if err := flush(); err != nil {
				return err
			}
			cur = newFileState(strings.TrimPrefix(line, "SF:"))

		case strings.HasPrefix(line, "FN:"):
			if cur == nil {
				continue
			}
			parts := strings.SplitN(strings.TrimPrefix(line, "FN:"), ",", 2)
			if len(parts) != 2 {
				continue
			}
			n, err := strconv.ParseUint(parts[0], 10, 32)
			if err != nil {
				continue
			}
			start := uint32(n)
			cur.pendingStarts[parts[1]] = &start

		case strings.HasPrefix(line, "FNDA:"):
			if cur == nil {
				continue
			}
			parts := strings.SplitN(strings.TrimPrefix(line, "FNDA:"), ",", 2)
			if len(parts) != 2 {
				continue
			}
			count, err := strconv.ParseUint(parts[0], 10, 64)
			if err != nil {
				continue
			}
			name := parts[1]
			cur.functions = append(cur.functions, model.FunctionCoverage{
				Name:      name,
				StartLine: cur.pendingStarts[name],
				HitCount:  count,
			})

		case strings.HasPrefix(line, "DA:"):
			if cur == nil {
				continue
			}
			parts := strings.Split(strings.TrimPrefix(line, "DA:"), ",")
			if len(parts) < 2 {
				continue
			}
			ln, err := strconv.ParseUint(parts[0], 10, 32)
			if err != nil {
				continue
			}
			count, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil || count < 0 {
				// Negative or unparseable counts mark non-instrumentable
				// lines; they must be dropped, not stored as zero.
				continue
			}
			cur.lines = append(cur.lines, model.LineCoverage{
				LineNumber: uint32(ln),
				HitCount:   uint64(count),
			})

		case strings.HasPrefix(line, "BRDA:"):
			if cur == nil {
				continue
			}
			parts := strings.SplitN(strings.TrimPrefix(line, "BRDA:"), ",", 4)
			if len(parts) != 4 {
				continue
			}
			ln, err := strconv.ParseUint(parts[0], 10, 32)
			if err != nil {
				continue
			}
			var hit uint64
			if parts[3] != "-" {
				if c, err := strconv.ParseUint(parts[3], 10, 64); err == nil {
					hit = c
				}
			}
			idx := cur.branchIndex[uint32(ln)]
			cur.branches = append(cur.branches, model.BranchCoverage{
				LineNumber:  uint32(ln),
				BranchIndex: idx,
				HitCount:    hit,
			})
			cur.branchIndex[uint32(ln)] = idx + 1

		case line == "end_of_record":
			if err := flush(); err != nil {
				return err
			}

		// TN, LF, LH, BRF, BRH, FNF, FNH are summary totals we recompute
		// ourselves; unknown tags are tolerated by falling through here.
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		return &coreerrors.ParseError{Format: string(model.FormatLCOV), Err: err}
	}

	return flush()
}

func (s *fileState) toFileCoverage() model.FileCoverage {
	sort.Slice(s.lines, func(i, j int) bool { return s.lines[i].LineNumber < s.lines[j].LineNumber })
	sort.Slice(s.branches, func(i, j int) bool {
		if s.branches[i].LineNumber != s.branches[j].LineNumber {
			return s.branches[i].LineNumber < s.branches[j].LineNumber
		}
		return s.branches[i].BranchIndex < s.branches[j].BranchIndex
	})
	return model.FileCoverage{
		Path:      s.path,
		Lines:     s.lines,
		Branches:  s.branches,
		Functions: s.functions,
	}
}
