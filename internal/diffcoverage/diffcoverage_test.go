package diffcoverage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covrs/covrs/internal/diffparser"
)

type fakeFile struct {
	id             int64
	instrumentable []int
	covered        map[int]bool
}

type fakeStore struct {
	union bool
	files map[string]fakeFile
}

func (f *fakeStore) IsUnionMode(ctx context.Context) (bool, error) { return f.union, nil }

func (f *fakeStore) FileID(ctx context.Context, path string) (int64, bool, error) {
	ff, ok := f.files[path]
	if !ok {
		return 0, false, nil
	}
	return ff.id, true, nil
}

func (f *fakeStore) InstrumentableLinesBatched(ctx context.Context, fileID int64, lines []int, union bool) ([]int, []int, error) {
	var ff fakeFile
	for _, cand := range f.files {
		if cand.id == fileID {
			ff = cand
		}
	}
	instrumentableSet := make(map[int]bool, len(ff.instrumentable))
	for _, l := range ff.instrumentable {
		instrumentableSet[l] = true
	}
	var covered, missed []int
	for _, l := range lines {
		if !instrumentableSet[l] {
			continue
		}
		if ff.covered[l] {
			covered = append(covered, l)
		} else {
			missed = append(missed, l)
		}
	}
	return covered, missed, nil
}

func (f *fakeStore) AllInstrumentableLines(ctx context.Context, fileID int64, union bool) ([]int, error) {
	for _, cand := range f.files {
		if cand.id == fileID {
			return cand.instrumentable, nil
		}
	}
	return nil, nil
}

func TestCompute_CoveredAndMissed(t *testing.T) {
	store := &fakeStore{
		files: map[string]fakeFile{
			"src/a.go": {
				id:             1,
				instrumentable: []int{1, 2, 3, 4, 5},
				covered:        map[int]bool{1: true, 2: true},
			},
		},
	}
	added := diffparser.AddedLines{"src/a.go": {1, 2, 3, 4}}

	res, err := Compute(context.Background(), store, added)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)

	fc := res.Files[0]
	assert.Equal(t, "src/a.go", fc.Path)
	assert.Equal(t, []int{1, 2}, fc.CoveredLines)
	assert.Equal(t, []int{3, 4}, fc.MissedLines)
	assert.Equal(t, []Range{{Start: 3, End: 4}}, fc.MissedRanges)
	assert.Equal(t, 2, res.TotalCovered)
	assert.Equal(t, 4, res.TotalInstrumentable)
}

func TestCompute_UnknownFileSkipped(t *testing.T) {
	store := &fakeStore{files: map[string]fakeFile{}}
	added := diffparser.AddedLines{"src/missing.go": {1, 2}}

	res, err := Compute(context.Background(), store, added)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
}

func TestCompute_NoInstrumentableDiffLinesOmitsFile(t *testing.T) {
	store := &fakeStore{
		files: map[string]fakeFile{
			"src/a.go": {
				id:             1,
				instrumentable: []int{100, 101},
				covered:        map[int]bool{},
			},
		},
	}
	added := diffparser.AddedLines{"src/a.go": {1, 2}}

	res, err := Compute(context.Background(), store, added)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
}

func TestCompute_SortsFilesByPath(t *testing.T) {
	store := &fakeStore{
		files: map[string]fakeFile{
			"src/b.go": {id: 2, instrumentable: []int{1}, covered: map[int]bool{1: true}},
			"src/a.go": {id: 1, instrumentable: []int{1}, covered: map[int]bool{1: true}},
		},
	}
	added := diffparser.AddedLines{
		"src/b.go": {1},
		"src/a.go": {1},
	}

	res, err := Compute(context.Background(), store, added)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "src/a.go", res.Files[0].Path)
	assert.Equal(t, "src/b.go", res.Files[1].Path)
}
