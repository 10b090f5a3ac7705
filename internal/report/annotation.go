package report

import "fmt"

// Annotation is one CI check-run style inline comment.
type Annotation struct {
	Path      string
	StartLine int
	EndLine   int
	Message   string
}

// BuildAnnotations runs the range coalescer's output already attached to
// each FileDetail and emits one Annotation per missed range.
func BuildAnnotations(r DiffCoverageReport) []Annotation {
	var out []Annotation
	for _, f := range r.Files {
		for _, rg := range f.MissedRanges {
			var msg string
			if rg.Start == rg.End {
				msg = fmt.Sprintf("Line %d not covered by tests", rg.Start)
			} else {
				msg = fmt.Sprintf("Lines %d-%d not covered by tests", rg.Start, rg.End)
			}
			out = append(out, Annotation{
				Path:      f.Path,
				StartLine: rg.Start,
				EndLine:   rg.End,
				Message:   msg,
			})
		}
	}
	return out
}
