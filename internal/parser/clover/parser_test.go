package clover

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
	assert.Equal(t, model.FormatClover, New().Format())
}

func TestParser_CanParse(t *testing.T) {
	p := New()
	assert.True(t, p.CanParse("clover.xml", []byte(`<coverage generated="1"><project><file name="a">`)))
	assert.False(t, p.CanParse("clover.xml", []byte(`<coverage line-rate="1.0">`)))
}

const sample = `<?xml version="1.0"?>
<coverage generated="1">
  <project timestamp="1">
    <file name="a.php" path="src/a.php">
      <line num="1" type="stmt" count="1"/>
      <line num="2" type="method" count="3" signature="foo()"/>
      <line num="3" type="cond" count="1" truecount="1" falsecount="0"/>
    </file>
  </project>
</coverage>`

func TestParser_ParseStreaming(t *testing.T) {
	files := parseAll(t, sample)

	require.Len(t, files, 1)
	f := files[0]
	assert.Equal(t, "src/a.php", f.Path)
	require.Len(t, f.Lines, 3)

	require.Len(t, f.Functions, 1)
	assert.Equal(t, "foo()", f.Functions[0].Name)

	require.Len(t, f.Branches, 2)
	assert.Equal(t, uint64(1), f.Branches[0].HitCount, "true arm hit")
	assert.Equal(t, uint64(0), f.Branches[1].HitCount, "false arm missed")
}
