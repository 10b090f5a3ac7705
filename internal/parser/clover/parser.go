// Package clover implements a streaming parser for Clover XML coverage
// reports, produced by PHPUnit (via clover formatter) and Atlassian Clover
// itself.
package clover

import (
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
)

// Parser implements parser.Parser for Clover XML reports.
type Parser struct{}

// New creates a new Clover parser.
func New() *Parser { return &Parser{} }

// Format returns model.FormatClover.
func (p *Parser) Format() model.Format { return model.FormatClover }

// CanParse accepts .xml extensions whose content carries a "<coverage" root
// together with "<project" and "<file" elements, checked after Cobertura and
// JaCoCo in the registry's detection order since Clover's root tag name
// collides with Cobertura's.
func (p *Parser) CanParse(path string, head []byte) bool {
	if !strings.HasSuffix(strings.ToLower(path), ".xml") && !parser.IsXML(head) {
		return false
	}
	s := string(head)
	return strings.Contains(s, "<coverage") && strings.Contains(s, "<project") && strings.Contains(s, "<file")
}

type xmlLine struct {
	Num        int    `xml:"num,attr"`
	Count      uint64 `xml:"count,attr"`
	Type       string `xml:"type,attr"`
	Signature  string `xml:"signature,attr"`
	TrueCount  int    `xml:"truecount,attr"`
	FalseCount int    `xml:"falsecount,attr"`
}

type xmlFile struct {
	Name  string    `xml:"name,attr"`
	Path  string    `xml:"path,attr"`
	Lines []xmlLine `xml:"line"`
}

// ParseStreaming walks the document with a token-based xml.Decoder so only
// one <file> subtree is materialized at a time, emitting one FileCoverage
// per <file> element in document order.
func (p *Parser) ParseStreaming(r io.Reader, emit parser.EmitFunc) error {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatClover), Offset: dec.InputOffset(), Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "file" {
			continue
		}

		var f xmlFile
		if err := dec.DecodeElement(&f, &start); err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatClover), Offset: dec.InputOffset(), Err: err}
		}

		path := f.Path
		if path == "" {
			path = f.Name
		}
		if path == "" {
			continue
		}

		if err := emit(convertFile(path, f)); err != nil {
			return err
		}
	}

	return nil
}

func convertFile(path string, f xmlFile) model.FileCoverage {
	var lines []model.LineCoverage
	var branches []model.BranchCoverage
	var functions []model.FunctionCoverage
	branchIndex := make(map[int]uint32)

	for _, l := range f.Lines {
		switch l.Type {
		case "stmt":
			lines = append(lines, model.LineCoverage{LineNumber: uint32(l.Num), HitCount: l.Count})

		case "method":
			lines = append(lines, model.LineCoverage{LineNumber: uint32(l.Num), HitCount: l.Count})
			functions = append(functions, model.FunctionCoverage{
				Name:      l.Signature,
				StartLine: model.Uint32Ptr(uint32(l.Num)),
				HitCount:  l.Count,
			})

		case "cond":
			lines = append(lines, model.LineCoverage{LineNumber: uint32(l.Num), HitCount: l.Count})
			arms := l.TrueCount
			if l.FalseCount > arms {
				arms = l.FalseCount
			}
			for i := 0; i < arms; i++ {
				idx := branchIndex[l.Num]

				trueHit := uint64(0)
				if i < l.TrueCount {
					trueHit = 1
				}
				branches = append(branches, model.BranchCoverage{
					LineNumber:  uint32(l.Num),
					BranchIndex: idx,
					HitCount:    trueHit,
				})
				branchIndex[l.Num] = idx + 1

				idx = branchIndex[l.Num]
				falseHit := uint64(0)
				if i < l.FalseCount {
					falseHit = 1
				}
				branches = append(branches, model.BranchCoverage{
					LineNumber:  uint32(l.Num),
					BranchIndex: idx,
					HitCount:    falseHit,
				})
				branchIndex[l.Num] = idx + 1
			}
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	sort.Slice(branches, func(i, j int) bool {
		if branches[i].LineNumber != branches[j].LineNumber {
			return branches[i].LineNumber < branches[j].LineNumber
		}
		return branches[i].BranchIndex < branches[j].BranchIndex
	})

	return model.FileCoverage{Path: path, Lines: lines, Branches: branches, Functions: functions}
}
