// Package diffparser extracts added line numbers from a unified diff,
// using go-diff for hunk-header structural parsing and a line-number walk
// over each hunk body for the per-line classification.
package diffparser

import (
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/covrs/covrs/internal/coreerrors"
)

// AddedLines maps a file path to the sorted, unique new-file line numbers
// that were added by the diff.
type AddedLines map[string][]int

// Parse reads unified diff text covering possibly many files and returns,
// for each file with at least one addition, the sorted added line numbers.
func Parse(diffText string) (AddedLines, error) {
	if strings.TrimSpace(diffText) == "" {
		return AddedLines{}, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return nil, &coreerrors.ParseError{Format: "unified-diff", Err: err}
	}

	result := make(AddedLines)
	for _, fd := range fileDiffs {
		path := targetPath(fd)
		if path == "" {
			continue
		}

		var added []int
		for _, h := range fd.Hunks {
			added = append(added, addedLinesInHunk(h)...)
		}
		if len(added) == 0 {
			continue
		}

		sort.Ints(added)
		added = dedupSorted(added)
		result[path] = append(result[path], added...)
	}

	for path := range result {
		sort.Ints(result[path])
		result[path] = dedupSorted(result[path])
	}

	return result, nil
}

// targetPath resolves the "+++" new-file name, stripping the leading a/ or
// b/ prefix and treating /dev/null (pure deletions) as having no file.
func targetPath(fd *godiff.FileDiff) string {
	name := fd.NewName
	if name == "/dev/null" || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		name = name[2:]
	}
	return name
}

// addedLinesInHunk walks a hunk body line by line, tracking the new-file
// line counter: it starts at the hunk's NewStartLine, advances on context
// and '+' lines, holds on '-' lines, and ignores "\ No newline" markers.
func addedLinesInHunk(h *godiff.Hunk) []int {
	var added []int
	newLine := int(h.NewStartLine)

	body := string(h.Body)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "" && i == len(lines)-1 {
			continue
		}
		if line == "" {
			newLine++
			continue
		}

		switch line[0] {
		case '+':
			added = append(added, newLine)
			newLine++
		case '-':
			// old-file line only; new-file counter does not advance.
		case '\\':
			// "\ No newline at end of file" — metadata, not a content line.
		default:
			newLine++
		}
	}

	return added
}

func dedupSorted(sorted []int) []int {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// ApplyPathPrefix rewrites every key in added to "<prefix trimmed of
// trailing '/'>/<key>", returning a new map.
func ApplyPathPrefix(added AddedLines, prefix string) AddedLines {
	prefix = strings.TrimRight(prefix, "/")
	out := make(AddedLines, len(added))
	for path, lines := range added {
		out[prefix+"/"+path] = lines
	}
	return out
}
