// Package cobertura implements a streaming parser for Cobertura XML
// coverage format, used directly by coverage.py and coverlet and produced
// as an alternate output mode by many JVM tools.
package cobertura

import (
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
)

// Parser implements parser.Parser for Cobertura XML reports.
type Parser struct{}

// New creates a new Cobertura parser.
func New() *Parser { return &Parser{} }

// Format returns model.FormatCobertura.
func (p *Parser) Format() model.Format { return model.FormatCobertura }

// CanParse accepts .xml extensions whose content carries Cobertura's
// "<coverage" root element and its "line-rate" attribute, distinguishing it
// from JaCoCo's "<report" root (tried earlier in the registry's detection
// order) and from Clover reports (tried after Cobertura).
func (p *Parser) CanParse(path string, head []byte) bool {
	if !strings.HasSuffix(strings.ToLower(path), ".xml") && !parser.IsXML(head) {
		return false
	}
	s := string(head)
	return strings.Contains(s, "<coverage") && strings.Contains(s, "line-rate")
}

type xmlLine struct {
	Number            int    `xml:"number,attr"`
	Hits              int64  `xml:"hits,attr"`
	Branch            string `xml:"branch,attr"`
	ConditionCoverage string `xml:"condition-coverage,attr"`
}

type xmlMethod struct {
	Name  string    `xml:"name,attr"`
	Lines []xmlLine `xml:"lines>line"`
}

type xmlClass struct {
	Filename string      `xml:"filename,attr"`
	Lines    []xmlLine   `xml:"lines>line"`
	Methods  []xmlMethod `xml:"methods>method"`
}

// fileAccum collects the (file, line_number) dedup state across every
// <class> element sharing a filename — Cobertura commonly nests inner
// classes as separate <class> entries against the same source file, so a
// single class subtree is not enough to apply the dedup-by-max-hit rule.
type fileAccum struct {
	lineHits   map[int]int64
	lineOrder  []int
	branchSeen map[int]bool
	branches   []model.BranchCoverage
	functions  []model.FunctionCoverage
}

func newFileAccum() *fileAccum {
	return &fileAccum{
		lineHits:   make(map[int]int64),
		branchSeen: make(map[int]bool),
	}
}

// ParseStreaming walks the document with a token-based xml.Decoder so only
// one <class> subtree is materialized at a time, accumulating per-filename
// state and flushing one FileCoverage per distinct filename, in first-seen
// order, once the document ends.
func (p *Parser) ParseStreaming(r io.Reader, emit parser.EmitFunc) error {
	dec := xml.NewDecoder(r)

	var sourcePrefix string
	var inSources bool

	order := make([]string, 0, 16)
	files := make(map[string]*fileAccum)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatCobertura), Offset: dec.InputOffset(), Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sources":
				inSources = true
			case "source":
				if inSources {
					var src string
					if err := dec.DecodeElement(&src, &t); err != nil {
						return &coreerrors.ParseError{Format: string(model.FormatCobertura), Offset: dec.InputOffset(), Err: err}
					}
					src = strings.TrimSpace(src)
					if sourcePrefix == "" && src != "" {
						sourcePrefix = src
					}
				}
			case "class":
				var cls xmlClass
				if err := dec.DecodeElement(&cls, &t); err != nil {
					return &coreerrors.ParseError{Format: string(model.FormatCobertura), Offset: dec.InputOffset(), Err: err}
				}
				if cls.Filename == "" {
					continue
				}
				path := cls.Filename
				if sourcePrefix != "" && !strings.HasPrefix(path, "/") {
					path = strings.TrimRight(sourcePrefix, "/") + "/" + path
				}
				acc, ok := files[path]
				if !ok {
					acc = newFileAccum()
					files[path] = acc
					order = append(order, path)
				}
				acc.absorb(cls)
			}
		case xml.EndElement:
			if t.Name.Local == "sources" {
				inSources = false
			}
		}
	}

	for _, path := range order {
		if err := emit(files[path].toFileCoverage(path)); err != nil {
			return err
		}
	}

	return nil
}

func (a *fileAccum) addLine(l xmlLine) {
	if cur, ok := a.lineHits[l.Number]; !ok {
		a.lineOrder = append(a.lineOrder, l.Number)
		a.lineHits[l.Number] = l.Hits
	} else if l.Hits > cur {
		a.lineHits[l.Number] = l.Hits
	}
}

func (a *fileAccum) recordBranches(l xmlLine) {
	if l.Branch != "true" || a.branchSeen[l.Number] {
		return
	}
	a.branchSeen[l.Number] = true
	c, t, ok := parseConditionCoverage(l.ConditionCoverage)
	if !ok {
		return
	}
	for i := 0; i < t; i++ {
		hit := uint64(0)
		if i < c {
			hit = 1
		}
		a.branches = append(a.branches, model.BranchCoverage{
			LineNumber:  uint32(l.Number),
			BranchIndex: uint32(i),
			HitCount:    hit,
		})
	}
}

func (a *fileAccum) absorb(cls xmlClass) {
	for _, l := range cls.Lines {
		a.addLine(l)
		a.recordBranches(l)
	}

	for _, m := range cls.Methods {
		for _, l := range m.Lines {
			a.addLine(l)
			a.recordBranches(l)
		}
		if len(m.Lines) == 0 {
			continue
		}
		start := m.Lines[0].Number
		hit := uint64(0)
		for _, l := range m.Lines {
			if l.Hits > 0 {
				hit = 1
				break
			}
		}
		a.functions = append(a.functions, model.FunctionCoverage{
			Name:      m.Name,
			StartLine: model.Uint32Ptr(uint32(start)),
			HitCount:  hit,
		})
	}
}

func (a *fileAccum) toFileCoverage(path string) model.FileCoverage {
	lines := make([]model.LineCoverage, 0, len(a.lineOrder))
	for _, ln := range a.lineOrder {
		lines = append(lines, model.LineCoverage{LineNumber: uint32(ln), HitCount: uint64(a.lineHits[ln])})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	sort.Slice(a.branches, func(i, j int) bool {
		if a.branches[i].LineNumber != a.branches[j].LineNumber {
			return a.branches[i].LineNumber < a.branches[j].LineNumber
		}
		return a.branches[i].BranchIndex < a.branches[j].BranchIndex
	})

	return model.FileCoverage{Path: path, Lines: lines, Branches: a.branches, Functions: a.functions}
}

// parseConditionCoverage extracts c and t from a "X% (c/t)" string.
func parseConditionCoverage(s string) (covered, total int, ok bool) {
	open := strings.IndexByte(s, '(')
	close := strings.IndexByte(s, ')')
	if open < 0 || close < 0 || close < open {
		return 0, 0, false
	}
	frac := s[open+1 : close]
	parts := strings.SplitN(frac, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	c, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	t, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return c, t, true
}
