package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covrs/covrs/internal/diffcoverage"
)

func TestWriteText_NoAddedLines(t *testing.T) {
	var sb strings.Builder
	err := WriteText(&sb, DiffCoverageReport{})
	require.NoError(t, err)
	assert.Equal(t, "No added lines found\n", sb.String())
}

func TestWriteText_NoneInstrumentable(t *testing.T) {
	var sb strings.Builder
	r := DiffCoverageReport{DiffFileCount: 2, TotalCovered: 0, TotalInstrumentable: 0}
	err := WriteText(&sb, r)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "none are instrumentable")
}

func TestWriteText_AllCovered(t *testing.T) {
	var sb strings.Builder
	r := DiffCoverageReport{
		Files: []FileDetail{
			{FileDiffCoverage: diffcoverage.FileDiffCoverage{Path: "a.go", CoveredLines: []int{1, 2}}},
		},
		TotalCovered:        2,
		TotalInstrumentable: 2,
	}
	err := WriteText(&sb, r)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "All 2 added lines are covered!")
}

func TestWriteText_PartialCoverage(t *testing.T) {
	var sb strings.Builder
	r := DiffCoverageReport{
		Files: []FileDetail{
			{FileDiffCoverage: diffcoverage.FileDiffCoverage{
				Path:         "a.go",
				CoveredLines: []int{1},
				MissedLines:  []int{2, 3},
				MissedRanges: []diffcoverage.Range{{Start: 2, End: 3}},
			}},
		},
		TotalCovered:        1,
		TotalInstrumentable: 3,
	}
	err := WriteText(&sb, r)
	require.NoError(t, err)
	out := sb.String()
	assert.Contains(t, out, "Diff coverage: 33.3% (1/3 lines)")
	assert.Contains(t, out, "a.go")
	assert.Contains(t, out, "2-3")
}

func TestWriteMarkdown_WithCommitSHALinks(t *testing.T) {
	var sb strings.Builder
	r := DiffCoverageReport{
		Files: []FileDetail{
			{FileDiffCoverage: diffcoverage.FileDiffCoverage{
				Path:         "src/main.rs",
				CoveredLines: []int{1},
				MissedLines:  []int{3, 4},
				MissedRanges: []diffcoverage.Range{{Start: 3, End: 4}},
			}},
		},
		TotalCovered:        1,
		TotalInstrumentable: 3,
		CommitSHA:           "abcdef1234567890",
	}
	err := WriteMarkdown(&sb, r)
	require.NoError(t, err)
	out := sb.String()
	assert.Contains(t, out, "### Diff Coverage (`abcdef1`)")
	assert.Contains(t, out, "[3-4](../blob/abcdef1234567890/src/main.rs#L3-L4)")
}

func TestWriteMarkdown_NoAddedLines(t *testing.T) {
	var sb strings.Builder
	err := WriteMarkdown(&sb, DiffCoverageReport{})
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "No added lines found")
}

func TestFormatRanges_NoLink(t *testing.T) {
	ranges := []diffcoverage.Range{{Start: 1, End: 1}, {Start: 5, End: 7}}
	assert.Equal(t, "1, 5-7", formatRanges(ranges, "", ""))
}

func TestFormatRanges_WithLink(t *testing.T) {
	ranges := []diffcoverage.Range{{Start: 5, End: 7}}
	assert.Equal(t, "[5-7](../blob/sha1/a.go#L5-L7)", formatRanges(ranges, "a.go", "sha1"))
}
