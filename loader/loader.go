// Package loader provides the runner.Loader implementations: YAML/JSON suite
// files, in-process functions and a dispatcher choosing between them.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/op-describe/runner"
)

// SourceFunc is an in-process source registering suites on a run
type SourceFunc func(ctx context.Context, run *runner.Run) error

// FuncLoader serves sources registered under a path or a base name
type FuncLoader map[string]SourceFunc

// Load runs the function registered for path
func (f FuncLoader) Load(ctx context.Context, run *runner.Run, path string) error {
	fn, ok := f[path]
	if !ok {
		fn, ok = f[filepath.Base(path)]
	}
	if !ok {
		return fmt.Errorf("no source registered for %s", path)
	}
	return fn(ctx, run)
}

// Paths returns the registered keys in sorted order
func (f FuncLoader) Paths() []string {
	paths := make([]string, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ByExtension dispatches on the file suffix. The longest matching suffix wins,
// so ".suite.yaml" can be routed differently from ".yaml".
type ByExtension map[string]runner.Loader

func (b ByExtension) Load(ctx context.Context, run *runner.Run, path string) error {
	var best string
	for suffix := range b {
		if strings.HasSuffix(path, suffix) && len(suffix) > len(best) {
			best = suffix
		}
	}
	if best == "" {
		return fmt.Errorf("no loader for %s", filepath.Base(path))
	}
	return b[best].Load(ctx, run, path)
}

// Default returns the dispatcher used by the CLI
func Default() ByExtension {
	yamlLoader := NewYAMLLoader()
	return ByExtension{
		".yaml": yamlLoader,
		".yml":  yamlLoader,
		".json": yamlLoader,
	}
}
