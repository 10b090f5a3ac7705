// Package jacoco implements a streaming parser for JaCoCo XML coverage
// reports, the standard coverage output for Maven and Gradle JVM builds.
package jacoco

import (
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
)

// Parser implements parser.Parser for JaCoCo XML reports.
type Parser struct{}

// New creates a new JaCoCo parser.
func New() *Parser { return &Parser{} }

// Format returns model.FormatJaCoCo.
func (p *Parser) Format() model.Format { return model.FormatJaCoCo }

// CanParse accepts .xml extensions whose content carries JaCoCo's distinct
// "<report" root element together with a "jacoco" marker (as in its
// DOCTYPE) or a "sourcefile" element, checked before the broader Cobertura
// "<coverage" marker in the registry's detection order.
func (p *Parser) CanParse(path string, head []byte) bool {
	if !strings.HasSuffix(strings.ToLower(path), ".xml") && !parser.IsXML(head) {
		return false
	}
	s := string(head)
	return strings.Contains(s, "<report") && (strings.Contains(s, "jacoco") || strings.Contains(s, "sourcefile"))
}

type xmlLine struct {
	Nr int `xml:"nr,attr"`
	Mi int `xml:"mi,attr"`
	Ci int `xml:"ci,attr"`
	Mb int `xml:"mb,attr"`
	Cb int `xml:"cb,attr"`
}

type xmlCounter struct {
	Type    string `xml:"type,attr"`
	Covered int    `xml:"covered,attr"`
}

type xmlMethod struct {
	Name     string       `xml:"name,attr"`
	Line     int          `xml:"line,attr"`
	Counters []xmlCounter `xml:"counter"`
}

type xmlClass struct {
	Name           string      `xml:"name,attr"`
	SourceFileName string      `xml:"sourcefilename,attr"`
	Methods        []xmlMethod `xml:"method"`
}

type xmlSourceFile struct {
	Name  string    `xml:"name,attr"`
	Lines []xmlLine `xml:"line"`
}

// methodBucket buffers <method> elements by (package, sourcefilename) since
// <class> and <sourcefile> are siblings under <package> and may appear in
// either order.
type methodBucket struct {
	functions []model.FunctionCoverage
}

// ParseStreaming walks <package> elements, buffering each package's
// <class>-derived methods by sourcefile name and its <sourcefile> line
// data, then emits one FileCoverage per <sourcefile> once the whole
// package subtree (the natural grouping unit for both siblings) is known.
func (p *Parser) ParseStreaming(r io.Reader, emit parser.EmitFunc) error {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatJaCoCo), Offset: dec.InputOffset(), Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "package" {
			continue
		}

		pkgName := attrValue(start, "name")

		var pkg struct {
			Classes     []xmlClass      `xml:"class"`
			SourceFiles []xmlSourceFile `xml:"sourcefile"`
		}
		if err := dec.DecodeElement(&pkg, &start); err != nil {
			return &coreerrors.ParseError{Format: string(model.FormatJaCoCo), Offset: dec.InputOffset(), Err: err}
		}

		buckets := make(map[string]*methodBucket)
		for _, cls := range pkg.Classes {
			if cls.SourceFileName == "" {
				continue
			}
			b, ok := buckets[cls.SourceFileName]
			if !ok {
				b = &methodBucket{}
				buckets[cls.SourceFileName] = b
			}
			for _, m := range cls.Methods {
				hit := uint64(0)
				for _, c := range m.Counters {
					if c.Type == "METHOD" && c.Covered > 0 {
						hit = 1
					}
				}
				b.functions = append(b.functions, model.FunctionCoverage{
					Name:      m.Name,
					StartLine: model.Uint32Ptr(uint32(m.Line)),
					HitCount:  hit,
				})
			}
		}

		for _, sf := range pkg.SourceFiles {
			path := sf.Name
			if pkgName != "" {
				path = pkgName + "/" + sf.Name
			}

			var lines []model.LineCoverage
			var branches []model.BranchCoverage
			for _, l := range sf.Lines {
				if l.Ci+l.Mi > 0 {
					lines = append(lines, model.LineCoverage{LineNumber: uint32(l.Nr), HitCount: uint64(l.Ci)})
				}
				if l.Cb+l.Mb > 0 {
					total := l.Cb + l.Mb
					for i := 0; i < total; i++ {
						hit := uint64(0)
						if i < l.Cb {
							hit = 1
						}
						branches = append(branches, model.BranchCoverage{
							LineNumber:  uint32(l.Nr),
							BranchIndex: uint32(i),
							HitCount:    hit,
						})
					}
				}
			}
			sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })

			var functions []model.FunctionCoverage
			if b, ok := buckets[sf.Name]; ok {
				functions = b.functions
			}

			if err := emit(model.FileCoverage{Path: path, Lines: lines, Branches: branches, Functions: functions}); err != nil {
				return err
			}
		}
	}

	return nil
}

func attrValue(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
