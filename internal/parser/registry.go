package parser

import (
	"bytes"
	"io"
	"os"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/pathutil"
)

// headSize is how much content detection sniffs before falling back to
// extension-based rules. Parsers must not rely on more than this.
const headSize = 4096

// detectionOrder is the priority order in which registered parsers are
// tried. It is deliberately most-specific-first: LCOV and Go cover have
// unambiguous line-prefix markers, Istanbul is JSON and easy to rule out,
// and the XML formats are ordered JaCoCo (its own "<report" root), then
// Cobertura ("<coverage" with "line-rate"), then Clover, whose "<coverage"
// root would otherwise be confused with Cobertura's.
var detectionOrder = []model.Format{
	model.FormatLCOV,
	model.FormatGoCover,
	model.FormatIstanbul,
	model.FormatJaCoCo,
	model.FormatCobertura,
	model.FormatClover,
}

// Registry dispatches coverage input to the parser whose format matches,
// either by explicit override or by content/extension detection.
type Registry struct {
	parsers map[model.Format]Parser
}

// NewRegistry builds a registry with the given parsers registered under
// their Format() identity.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[model.Format]Parser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Format()] = p
	}
	return r
}

// Get returns the parser registered for format, or a ConfigError if none is
// registered (e.g. an unknown --format name from the CLI).
func (r *Registry) Get(format model.Format) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, &coreerrors.ConfigError{Msg: "unknown coverage format: " + string(format)}
	}
	return p, nil
}

// Detect opens path, reads its head, and returns the format of the first
// registered parser (in detectionOrder) whose CanParse accepts it.
func (r *Registry) Detect(path string) (model.Format, error) {
	cleanPath, err := pathutil.ValidatePath(path)
	if err != nil {
		return model.FormatAuto, &coreerrors.IOError{Path: path, Err: err}
	}

	head, err := readHead(cleanPath, headSize)
	if err != nil {
		return model.FormatAuto, &coreerrors.IOError{Path: path, Err: err}
	}

	for _, format := range detectionOrder {
		p, ok := r.parsers[format]
		if !ok {
			continue
		}
		if p.CanParse(path, head) {
			return format, nil
		}
	}

	return model.FormatAuto, &coreerrors.FormatDetectionError{Path: path}
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 - path validated by caller
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// IsXML reports whether content looks like an XML document, used by the
// XML-based format parsers (Cobertura, JaCoCo, Clover) to bail out of
// CanParse cheaply before attempting any real parsing.
func IsXML(content []byte) bool {
	trimmed := bytes.TrimSpace(content)
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<"))
}
