// Package gocover implements a streaming parser for the profile format
// emitted by `go test -coverprofile`.
package gocover

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
)

// Parser implements parser.Parser for Go coverage profiles.
type Parser struct{}

// New creates a new Go cover parser.
func New() *Parser { return &Parser{} }

// Format returns model.FormatGoCover.
func (p *Parser) Format() model.Format { return model.FormatGoCover }

// CanParse accepts .gocov/.coverprofile extensions, and otherwise
// sniffs for the leading "mode:" header line.
func (p *Parser) CanParse(path string, head []byte) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".coverprofile") || strings.HasSuffix(lower, ".gocov") {
		return true
	}
	trimmed := strings.TrimLeft(string(head), "\xef\xbb\xbf \t\r\n")
	return strings.HasPrefix(trimmed, "mode:")
}

type block struct {
	startLine, endLine uint32
	count              uint64
}

// ParseStreaming groups blocks by path preserving first-seen order, then
// emits one FileCoverage per path once the stream ends: the format gives no
// per-file terminator, so blocks for a path can be interleaved with blocks
// for others.
func (p *Parser) ParseStreaming(r io.Reader, emit parser.EmitFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	order := make([]string, 0, 16)
	blocks := make(map[string][]block)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(strings.TrimSpace(line), "mode:") {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "mode:") {
			continue
		}

		path, b, err := parseLine(line)
		if err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatGoCover), Err: err}
		}

		if _, ok := blocks[path]; !ok {
			order = append(order, path)
		}
		blocks[path] = append(blocks[path], b)
	}
	if err := scanner.Err(); err != nil {
		return &coreerrors.ParseError{Format: string(model.FormatGoCover), Err: err}
	}

	for _, path := range order {
		if err := emit(buildFileCoverage(path, blocks[path])); err != nil {
			return err
		}
	}
	return nil
}

// parseLine splits "<path>:<sLine>.<sCol>,<eLine>.<eCol> <numStmt> <count>".
// The path may itself contain colons (Windows drive letters, module paths
// with version suffixes are not an issue but vendored paths can be), so the
// split anchors on the last ".go:" occurrence.
func parseLine(line string) (string, block, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", block{}, &parseFieldError{line}
	}

	locPart := fields[0]
	idx := strings.LastIndex(locPart, ".go:")
	if idx < 0 {
		return "", block{}, &parseFieldError{line}
	}
	path := locPart[:idx+3]
	rangePart := locPart[idx+4:]

	rangeFields := strings.SplitN(rangePart, ",", 2)
	if len(rangeFields) != 2 {
		return "", block{}, &parseFieldError{line}
	}
	startLine, err := parsePos(rangeFields[0])
	if err != nil {
		return "", block{}, err
	}
	endLine, err := parsePos(rangeFields[1])
	if err != nil {
		return "", block{}, err
	}

	count, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return "", block{}, err
	}

	return path, block{startLine: startLine, endLine: endLine, count: count}, nil
}

func parsePos(s string) (uint32, error) {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0, &parseFieldError{s}
	}
	n, err := strconv.ParseUint(s[:dot], 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

type parseFieldError struct{ line string }

func (e *parseFieldError) Error() string { return "malformed coverage line: " + e.line }

func buildFileCoverage(path string, blocks []block) model.FileCoverage {
	maxHit := make(map[uint32]uint64)
	for _, b := range blocks {
		for ln := b.startLine; ln <= b.endLine; ln++ {
			if cur, ok := maxHit[ln]; !ok || b.count > cur {
				maxHit[ln] = b.count
			}
		}
	}

	lines := make([]model.LineCoverage, 0, len(maxHit))
	for ln, hit := range maxHit {
		lines = append(lines, model.LineCoverage{LineNumber: ln, HitCount: hit})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })

	return model.FileCoverage{Path: path, Lines: lines}
}
