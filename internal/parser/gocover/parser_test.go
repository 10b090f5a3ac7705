package gocover

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covrs/covrs/internal/model"
)

func parseAll(t *testing.T, content string) []model.FileCoverage {
	t.Helper()
	p := New()
	var got []model.FileCoverage
	err := p.ParseStreaming(strings.NewReader(content), func(fc model.FileCoverage) error {
		got = append(got, fc)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestParser_Format(t *testing.T) {
	assert.Equal(t, model.FormatGoCover, New().Format())
}

func TestParser_CanParse(t *testing.T) {
	p := New()
	assert.True(t, p.CanParse("c.coverprofile", nil))
	assert.True(t, p.CanParse("anything", []byte("mode: set\n")))
	assert.False(t, p.CanParse("anything", []byte("not coverage\n")))
}

func TestParser_ParseStreaming_OverlappingBlocks(t *testing.T) {
	content := "mode: set\n" +
		"f.go:5.1,10.10 3 2\n" +
		"f.go:8.1,12.10 2 7\n"
	files := parseAll(t, content)

	require.Len(t, files, 1)
	lines := map[uint32]uint64{}
	for _, l := range files[0].Lines {
		lines[l.LineNumber] = l.HitCount
	}
	for ln := uint32(5); ln <= 7; ln++ {
		assert.Equal(t, uint64(2), lines[ln], "line %d", ln)
	}
	for ln := uint32(8); ln <= 12; ln++ {
		assert.Equal(t, uint64(7), lines[ln], "line %d", ln)
	}
}

func TestParser_ParseStreaming_MultipleFilesPreservesFirstSeenOrder(t *testing.T) {
	content := "mode: atomic\n" +
		"b.go:1.1,2.1 1 1\n" +
		"a.go:1.1,2.1 1 0\n" +
		"b.go:5.1,6.1 1 1\n"
	files := parseAll(t, content)

	require.Len(t, files, 2)
	assert.Equal(t, "b.go", files[0].Path)
	assert.Equal(t, "a.go", files[1].Path)
}

func TestParser_ParseStreaming_MalformedLine(t *testing.T) {
	p := New()
	err := p.ParseStreaming(strings.NewReader("mode: set\nnot a valid line\n"), func(model.FileCoverage) error { return nil })
	assert.Error(t, err)
}
