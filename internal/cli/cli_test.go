package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covrs/covrs/internal/parser"
	"github.com/covrs/covrs/internal/parser/lcov"
	"github.com/covrs/covrs/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(context.Background(), dbPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &App{
		Store:    st,
		Registry: parser.NewRegistry(lcov.New()),
		Logger:   zap.NewNop(),
		Stdin:    strings.NewReader(""),
	}
}

func writeLCOVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coverage.info")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covrs"}, &out, &errOut, newTestApp(t))
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covrs", "--version"}, &out, &errOut, newTestApp(t))
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "covrs version")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covrs", "bogus"}, &out, &errOut, newTestApp(t))
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), `unknown command "bogus"`)
}

func TestRun_IngestAndSummary(t *testing.T) {
	app := newTestApp(t)
	path := writeLCOVFile(t, "SF:a.rs\nDA:1,5\nDA:2,0\nend_of_record\n")

	var out, errOut bytes.Buffer
	code := Run([]string{"covrs", "ingest", path}, &out, &errOut, app)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "ingested")

	out.Reset()
	code = Run([]string{"covrs", "summary"}, &out, &errOut, app)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "Lines:")
	assert.Contains(t, out.String(), "1/2")
}

func TestRun_IngestRequiresFileArgument(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"covrs", "ingest"}, &out, &errOut, newTestApp(t))
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "requires a file argument")
}

func TestRun_ReportsListsIngested(t *testing.T) {
	app := newTestApp(t)
	path := writeLCOVFile(t, "SF:a.rs\nDA:1,1\nend_of_record\n")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, Run([]string{"covrs", "ingest", path, "--name", "myreport"}, &out, &errOut, app))

	out.Reset()
	code := Run([]string{"covrs", "reports"}, &out, &errOut, app)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "myreport")
}

func TestRun_FilesSortByCoverage(t *testing.T) {
	app := newTestApp(t)
	path := writeLCOVFile(t, "SF:a.rs\nDA:1,0\nend_of_record\nSF:b.rs\nDA:1,1\nend_of_record\n")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, Run([]string{"covrs", "ingest", path}, &out, &errOut, app))

	out.Reset()
	code := Run([]string{"covrs", "files", "--sort-by-coverage"}, &out, &errOut, app)
	require.Equal(t, 0, code, errOut.String())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "a.rs"))
	assert.True(t, strings.HasPrefix(lines[1], "b.rs"))
}

func TestRun_LinesUncoveredFilter(t *testing.T) {
	app := newTestApp(t)
	path := writeLCOVFile(t, "SF:a.rs\nDA:1,1\nDA:2,0\nend_of_record\n")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, Run([]string{"covrs", "ingest", path}, &out, &errOut, app))

	out.Reset()
	code := Run([]string{"covrs", "lines", "a.rs", "--uncovered"}, &out, &errOut, app)
	require.Equal(t, 0, code, errOut.String())
	assert.Equal(t, "2\t0\n", out.String())
}

func TestRun_DiffCoverageFromStdin(t *testing.T) {
	app := newTestApp(t)
	path := writeLCOVFile(t, "SF:a.go\nDA:1,1\nDA:2,0\nend_of_record\n")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, Run([]string{"covrs", "ingest", path}, &out, &errOut, app))

	diff := "diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1,2 +1,2 @@\n+line1\n+line2\n"
	app.Stdin = strings.NewReader(diff)

	out.Reset()
	code := Run([]string{"covrs", "diff-coverage"}, &out, &errOut, app)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "a.go")
}

func TestDBPath_ParsesFlag(t *testing.T) {
	assert.Equal(t, "custom.db", DBPath([]string{"covrs", "--db", "custom.db", "summary"}))
	assert.Equal(t, "custom.db", DBPath([]string{"covrs", "--db=custom.db", "summary"}))
	assert.Equal(t, defaultDBPath, DBPath([]string{"covrs", "summary"}))
}
