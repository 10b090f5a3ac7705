// Package istanbul implements a streaming parser for the JSON coverage
// format produced by Istanbul/NYC/Jest/c8.
package istanbul

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
)

// Parser implements parser.Parser for Istanbul-style JSON coverage maps.
type Parser struct{}

// New creates a new Istanbul parser.
func New() *Parser { return &Parser{} }

// Format returns model.FormatIstanbul.
func (p *Parser) Format() model.Format { return model.FormatIstanbul }

// CanParse accepts .json extensions outright, and otherwise sniffs for the
// "statementMap" key that every Istanbul-derived coverage map carries.
func (p *Parser) CanParse(path string, head []byte) bool {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return true
	}
	return strings.Contains(string(head), `"statementMap"`)
}

type location struct {
	Line int `json:"line"`
}

type rangeLoc struct {
	Start location `json:"start"`
	End   location `json:"end"`
}

type branchEntry struct {
	Loc       rangeLoc   `json:"loc"`
	Locations []rangeLoc `json:"locations"`
}

type fnEntry struct {
	Name string   `json:"name"`
	Decl rangeLoc `json:"decl"`
	Loc  rangeLoc `json:"loc"`
}

type fileEntry struct {
	StatementMap map[string]rangeLoc    `json:"statementMap"`
	S            map[string]uint64      `json:"s"`
	BranchMap    map[string]branchEntry `json:"branchMap"`
	B            map[string][]uint64    `json:"b"`
	FnMap        map[string]fnEntry     `json:"fnMap"`
	F            map[string]uint64      `json:"f"`
}

// ParseStreaming walks the top-level JSON object token by token so only one
// file's record is decoded into memory at a time, then converts each
// fileEntry into a FileCoverage record.
func (p *Parser) ParseStreaming(r io.Reader, emit parser.EmitFunc) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return &coreerrors.ParseError{Format: string(model.FormatIstanbul), Err: err}
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return &coreerrors.ParseError{Format: string(model.FormatIstanbul), Err: errNotObject}
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatIstanbul), Err: err}
		}
		path, ok := keyTok.(string)
		if !ok {
			return &coreerrors.ParseError{Format: string(model.FormatIstanbul), Err: errNotObject}
		}

		var entry fileEntry
		if err := dec.Decode(&entry); err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatIstanbul), Err: err}
		}

		if err := emit(convert(path, entry)); err != nil {
			return err
		}
	}

	return nil
}

var errNotObject = jsonShapeError("expected top-level JSON object")

type jsonShapeError string

func (e jsonShapeError) Error() string { return string(e) }

func convert(path string, entry fileEntry) model.FileCoverage {
	lineHits := make(map[int]uint64)
	for k, loc := range entry.StatementMap {
		hit := entry.S[k]
		if cur, ok := lineHits[loc.Start.Line]; !ok || hit > cur {
			lineHits[loc.Start.Line] = hit
		}
	}
	lines := make([]model.LineCoverage, 0, len(lineHits))
	for ln, hit := range lineHits {
		lines = append(lines, model.LineCoverage{LineNumber: uint32(ln), HitCount: hit})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })

	var branches []model.BranchCoverage
	branchIndex := make(map[int]uint32)
	branchKeys := sortedKeys(entry.BranchMap)
	for _, k := range branchKeys {
		b := entry.BranchMap[k]
		line := b.Loc.Start.Line
		if line == 0 && len(b.Locations) > 0 {
			line = b.Locations[0].Start.Line
		}
		for _, hit := range entry.B[k] {
			idx := branchIndex[line]
			branches = append(branches, model.BranchCoverage{
				LineNumber:  uint32(line),
				BranchIndex: idx,
				HitCount:    hit,
			})
			branchIndex[line] = idx + 1
		}
	}

	var functions []model.FunctionCoverage
	for _, k := range sortedKeys(entry.FnMap) {
		fn := entry.FnMap[k]
		name := fn.Name
		if name == "" {
			name = "(anonymous)"
		}
		start := fn.Decl.Start.Line
		if start == 0 {
			start = fn.Loc.Start.Line
		}
		end := fn.Loc.End.Line
		functions = append(functions, model.FunctionCoverage{
			Name:      name,
			StartLine: model.Uint32Ptr(uint32(start)),
			EndLine:   model.Uint32Ptr(uint32(end)),
			HitCount:  entry.F[k],
		})
	}

	return model.FileCoverage{Path: path, Lines: lines, Branches: branches, Functions: functions}
}

// sortedKeys orders map keys numerically when every key parses as an
// integer (Istanbul's statementMap/branchMap/fnMap keys always do), falling
// back to lexical order otherwise so iteration stays deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, erri := strconv.Atoi(keys[i])
		nj, errj := strconv.Atoi(keys[j])
		if erri == nil && errj == nil {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	return keys
}
