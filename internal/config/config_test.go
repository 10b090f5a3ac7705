package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "covrs.yaml", "version: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultDBPath, cfg.DBPath)
	assert.Equal(t, "auto", cfg.DefaultFormat)
	assert.Equal(t, "origin/main", cfg.Diff.Base)
}

func TestLoad_ExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "covrs.yaml", `
version: 1
db: ./custom.db
format: lcov
diff:
  base: origin/develop
  path_prefix: server
review:
  enabled: true
  repository: acme/widget
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./custom.db", cfg.DBPath)
	assert.Equal(t, "lcov", cfg.DefaultFormat)
	assert.Equal(t, "origin/develop", cfg.Diff.Base)
	assert.Equal(t, "server", cfg.Diff.PathPrefix)
	assert.True(t, cfg.Review.Enabled)
	assert.Equal(t, "acme/widget", cfg.Review.Repository)
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "covrs.yaml", "version: 2\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config version")
}

func TestLoad_ExtendsInheritance(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
version: 1
db: ./base.db
diff:
  base: origin/main
`)
	childPath := writeFile(t, dir, "covrs.yaml", `
version: 1
extends: base.yaml
format: cobertura
`)

	cfg, err := Load(childPath)
	require.NoError(t, err)
	assert.Equal(t, "./base.db", cfg.DBPath, "inherited from parent")
	assert.Equal(t, "cobertura", cfg.DefaultFormat, "overridden by child")
	assert.Equal(t, "origin/main", cfg.Diff.Base)
}

func TestLoad_ExtendsCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "version: 1\nextends: b.yaml\n")
	bPath := writeFile(t, dir, "b.yaml", "version: 1\nextends: a.yaml\n")

	_, err := Load(bPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DBPath:        "./x.db",
		DefaultFormat: "lcov",
		Diff:          DiffConfig{Base: "origin/main", PathPrefix: "srv"},
		Review:        ReviewConfig{Enabled: true, Repository: "acme/widget"},
	}

	var sb strings.Builder
	require.NoError(t, Write(&sb, cfg))

	path := writeFile(t, dir, "covrs.yaml", sb.String())
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DBPath, got.DBPath)
	assert.Equal(t, cfg.DefaultFormat, got.DefaultFormat)
	assert.Equal(t, cfg.Diff, got.Diff)
	assert.Equal(t, cfg.Review, got.Review)
}

func TestFindConfig_WalksUpToParent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "covrs.yaml", "version: 1\n")
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(cwd)
	require.NoError(t, os.Chdir(sub))

	found, err := FindConfig()
	require.NoError(t, err)
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	resolvedFound, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, "covrs.yaml"), resolvedFound)
}
