// Package discovery enumerates suite files below a directory.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches the suite file formats the loaders understand
var DefaultInclude = []string{
	"**/*.suite.yaml",
	"**/*.suite.yml",
	"**/*.suite.json",
}

// DefaultSkipDirs contains directory names that are never descended into
var DefaultSkipDirs = []string{
	".git",
	"node_modules",
	"vendor",
}

// ErrRootNotFound is returned when the directory to search does not exist
var ErrRootNotFound = errors.New("discovery: root not found")

// Options controls which files are returned
type Options struct {
	Include  []string // Globs on the slash-separated path relative to root; DefaultInclude when empty
	Exclude  []string // Path prefixes or globs relative to root
	SkipDirs []string // Directory base names skipped in addition to DefaultSkipDirs
}

// Find walks root and returns the sorted absolute paths of every matching file
func Find(ctx context.Context, root string, opts Options) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	skipSet := make(map[string]bool)
	for _, name := range append(slices.Clone(DefaultSkipDirs), opts.SkipDirs...) {
		skipSet[name] = true
	}
	excluded := ExcludeMatcher(opts.Exclude)

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			return walkErr
		}
		if path == absRoot {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if skipSet[d.Name()] || excluded(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(relPath) || !matchesAny(include, relPath) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	slices.Sort(files)
	return files, nil
}

// ExcludeMatcher returns a predicate reporting whether a relative path is excluded.
// A plain pattern excludes the path it names and everything below it; a pattern
// containing glob characters is matched against the whole path.
func ExcludeMatcher(patterns []string) func(relPath string) bool {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.Trim(filepath.ToSlash(p), "/")
		p = strings.TrimPrefix(p, "./")
		if p != "" {
			normalized = append(normalized, p)
		}
	}

	return func(relPath string) bool {
		relPath = filepath.ToSlash(relPath)
		for _, p := range normalized {
			if hasGlobMeta(p) {
				if matched, err := doublestar.Match(p, relPath); err == nil && matched {
					return true
				}
				continue
			}
			if relPath == p || strings.HasPrefix(relPath, p+"/") {
				return true
			}
		}
		return false
	}
}

func matchesAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// Expand resolves a mix of files and directories into suite files.
// Directories are searched with opts; files are kept as given.
func Expand(ctx context.Context, paths []string, opts Options) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
			}
			out = append(out, abs)
			continue
		}
		found, err := Find(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}
