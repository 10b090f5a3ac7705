// Package config loads the YAML project configuration, following the
// teacher's loader.go approach of a versioned schema with parent
// inheritance via "extends" chains.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/covrs/covrs/internal/coreerrors"
	"github.com/covrs/covrs/internal/pathutil"
)

// Config is the resolved project configuration.
type Config struct {
	Version       int
	DBPath        string
	DefaultFormat string
	ProjectRoot   string
	Diff          DiffConfig
	Review        ReviewConfig
}

// DiffConfig controls default diff-coverage behavior.
type DiffConfig struct {
	Base       string
	PathPrefix string
}

// ReviewConfig controls the review-platform integration's defaults.
type ReviewConfig struct {
	Enabled    bool
	Repository string
}

type fileConfig struct {
	Version int          `yaml:"version"`
	Extends string       `yaml:"extends,omitempty"`
	DB      string       `yaml:"db,omitempty"`
	Format  string       `yaml:"format,omitempty"`
	Root    string       `yaml:"root,omitempty"`
	Diff    fileDiff     `yaml:"diff,omitempty"`
	Review  fileReview   `yaml:"review,omitempty"`
}

type fileDiff struct {
	Base       string `yaml:"base,omitempty"`
	PathPrefix string `yaml:"path_prefix,omitempty"`
}

type fileReview struct {
	Enabled    bool   `yaml:"enabled"`
	Repository string `yaml:"repository,omitempty"`
}

// defaultDBPath is the default database location, matching the CLI's own
// --db default so a config file only needs to override it explicitly.
const defaultDBPath = "./.covrs.db"

// Load reads and resolves the config at path, following "extends"
// inheritance (a parent may itself extend another file; cycles are rejected)
// with child values overriding parent values.
func Load(path string) (Config, error) {
	return loadWithCycleCheck(path, make(map[string]struct{}))
}

func loadWithCycleCheck(path string, visited map[string]struct{}) (Config, error) {
	cleanPath, err := pathutil.ValidatePath(path)
	if err != nil {
		return Config{}, &coreerrors.ConfigError{Msg: fmt.Sprintf("invalid config path %q: %v", path, err)}
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return Config{}, &coreerrors.ConfigError{Msg: err.Error()}
	}
	if _, ok := visited[absPath]; ok {
		return Config{}, &coreerrors.ConfigError{Msg: "circular config inheritance detected: " + absPath}
	}
	visited[absPath] = struct{}{}

	raw, err := os.ReadFile(cleanPath) // #nosec G304 - path validated above
	if err != nil {
		return Config{}, &coreerrors.IOError{Path: path, Err: err}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, &coreerrors.ConfigError{Msg: "parsing " + path + ": " + err.Error()}
	}
	if fc.Version == 0 {
		fc.Version = 1
	}
	if fc.Version != 1 {
		return Config{}, &coreerrors.ConfigError{Msg: fmt.Sprintf("unsupported config version: %d", fc.Version)}
	}

	child := fromFile(fc)

	if fc.Extends == "" {
		applyDefaults(&child)
		return child, nil
	}

	parentPath := fc.Extends
	if !filepath.IsAbs(parentPath) {
		parentPath = filepath.Join(filepath.Dir(absPath), parentPath)
	}
	parent, err := loadWithCycleCheck(parentPath, visited)
	if err != nil {
		return Config{}, &coreerrors.ConfigError{Msg: "loading parent config " + fc.Extends + ": " + err.Error()}
	}

	merged := merge(parent, child)
	applyDefaults(&merged)
	return merged, nil
}

func fromFile(fc fileConfig) Config {
	return Config{
		Version:       fc.Version,
		DBPath:        fc.DB,
		DefaultFormat: fc.Format,
		ProjectRoot:   fc.Root,
		Diff: DiffConfig{
			Base:       fc.Diff.Base,
			PathPrefix: fc.Diff.PathPrefix,
		},
		Review: ReviewConfig{
			Enabled:    fc.Review.Enabled,
			Repository: fc.Review.Repository,
		},
	}
}

// merge overlays child onto parent; empty child fields keep the parent's
// value.
func merge(parent, child Config) Config {
	result := parent
	if child.Version != 0 {
		result.Version = child.Version
	}
	if child.DBPath != "" {
		result.DBPath = child.DBPath
	}
	if child.DefaultFormat != "" {
		result.DefaultFormat = child.DefaultFormat
	}
	if child.ProjectRoot != "" {
		result.ProjectRoot = child.ProjectRoot
	}
	if child.Diff.Base != "" {
		result.Diff.Base = child.Diff.Base
	}
	if child.Diff.PathPrefix != "" {
		result.Diff.PathPrefix = child.Diff.PathPrefix
	}
	if child.Review.Enabled {
		result.Review = child.Review
	}
	return result
}

func applyDefaults(c *Config) {
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	if c.DefaultFormat == "" {
		c.DefaultFormat = "auto"
	}
	if c.Diff.Base == "" {
		c.Diff.Base = "origin/main"
	}
}

// configNames are searched, in order, by FindConfig.
var configNames = []string{".covrs.yaml", ".covrs.yml", "covrs.yaml", "covrs.yml"}

// FindConfig walks up from the current directory looking for a recognized
// config filename, the way the teacher's FindConfigFrom does for monorepo
// layouts where the config lives at a parent level.
func FindConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", &coreerrors.IOError{Err: err}
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", &coreerrors.IOError{Err: err}
	}

	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no config file found in current or parent directories")
		}
		dir = parent
	}
}

// Write serializes cfg back to YAML, e.g. for an `init` command to scaffold
// a starter file.
func Write(w io.Writer, c Config) error {
	fc := fileConfig{
		Version: 1,
		DB:      c.DBPath,
		Format:  c.DefaultFormat,
		Root:    c.ProjectRoot,
		Diff: fileDiff{
			Base:       c.Diff.Base,
			PathPrefix: c.Diff.PathPrefix,
		},
		Review: fileReview{
			Enabled:    c.Review.Enabled,
			Repository: c.Review.Repository,
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(fc)
}
