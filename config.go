package describe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-describe/flags"
	"github.com/ethereum-optimism/infra/op-describe/runner"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	TestDir          string
	ConfigFile       string        // Config file that was applied, empty if none
	Include          []string      // Globs selecting suite files
	Exclude          []string      // Prefixes or globs skipped during discovery
	Preload          []string      // Absolute files or directories run first
	RunInterval      time.Duration // Interval between test runs
	RunOnce          bool          // Indicates if the service should exit after one test run
	Quiet            bool
	ShowSummary      bool
	Parallel         bool
	BatchSize        int
	Timeout          time.Duration // Per file, and per case without its own timeout
	CountSuiteErrors bool
	NoColor          bool
	ShowTable        bool
	LogDir           string // Directory to store per-run logs
	Log              log.Logger
}

// RunnerOptions returns the options passed to every run
func (c *Config) RunnerOptions() runner.Options {
	return runner.Options{
		Quiet:            c.Quiet,
		ShowSummary:      c.ShowSummary,
		Parallel:         c.Parallel,
		BatchSize:        c.BatchSize,
		Timeout:          c.Timeout,
		CountSuiteErrors: c.CountSuiteErrors,
		NoColor:          c.NoColor,
	}
}

// TOMLDuration decodes strings such as "5s" into a time.Duration
type TOMLDuration time.Duration

func (t *TOMLDuration) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*t = TOMLDuration(d)
	return nil
}

// FileConfig is the content of the optional TOML config file.
// Pointer fields distinguish "absent" from the zero value.
type FileConfig struct {
	Include     []string      `toml:"include"`
	Exclude     []string      `toml:"exclude"`
	Preload     []string      `toml:"preload"`
	Parallel    *bool         `toml:"parallel"`
	BatchSize   *int          `toml:"batch_size"`
	Timeout     *TOMLDuration `toml:"timeout"`
	Quiet       *bool         `toml:"quiet"`
	ShowSummary *bool         `toml:"show_summary"`

	path string
}

// LoadFileConfig decodes a TOML config file. Unknown keys are rejected.
func LoadFileConfig(path string) (*FileConfig, error) {
	cfg := new(FileConfig)
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	if cfg.BatchSize != nil && *cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch_size must not be negative, got %d", *cfg.BatchSize)
	}
	cfg.path = path
	return cfg, nil
}

// resolveFileConfig loads the explicit config file, or the default one if it exists
func resolveFileConfig(path string, explicit bool) (*FileConfig, error) {
	if !explicit {
		path = flags.DefaultConfigFile
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
	}
	return LoadFileConfig(path)
}

// Apply copies every value the file sets unless isSet reports that the
// matching flag was given explicitly. Relative preload paths are resolved
// against the directory of the config file.
func (f *FileConfig) Apply(cfg *Config, isSet func(name string) bool) error {
	if f == nil {
		return nil
	}
	if len(f.Include) > 0 && !isSet(flags.Include.Name) {
		cfg.Include = f.Include
	}
	if len(f.Exclude) > 0 && !isSet(flags.Exclude.Name) {
		cfg.Exclude = f.Exclude
	}
	if len(f.Preload) > 0 && !isSet(flags.Preload.Name) {
		base := filepath.Dir(f.path)
		preload := make([]string, 0, len(f.Preload))
		for _, p := range f.Preload {
			if !filepath.IsAbs(p) {
				p = filepath.Join(base, p)
			}
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("failed to resolve preload path '%s': %w", p, err)
			}
			preload = append(preload, abs)
		}
		cfg.Preload = preload
	}
	if f.Parallel != nil && !isSet(flags.Parallel.Name) {
		cfg.Parallel = *f.Parallel
	}
	if f.BatchSize != nil && !isSet(flags.BatchSize.Name) {
		cfg.BatchSize = *f.BatchSize
	}
	if f.Timeout != nil && !isSet(flags.Timeout.Name) {
		cfg.Timeout = time.Duration(*f.Timeout)
	}
	if f.Quiet != nil && !isSet(flags.Quiet.Name) {
		cfg.Quiet = *f.Quiet
	}
	if f.ShowSummary != nil && !isSet(flags.ShowSummary.Name) {
		cfg.ShowSummary = *f.ShowSummary
	}
	cfg.ConfigFile = f.path
	return nil
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, testDir string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}
	if ctx.Int(flags.BatchSize.Name) < 0 {
		return nil, fmt.Errorf("batch size must not be negative, got %d", ctx.Int(flags.BatchSize.Name))
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}

	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	var preload []string
	for _, p := range ctx.StringSlice(flags.Preload.Name) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for preload '%s': %w", p, err)
		}
		preload = append(preload, abs)
	}

	cfg := &Config{
		TestDir:          absTestDir,
		Include:          ctx.StringSlice(flags.Include.Name),
		Exclude:          ctx.StringSlice(flags.Exclude.Name),
		Preload:          preload,
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		Quiet:            ctx.Bool(flags.Quiet.Name),
		ShowSummary:      ctx.Bool(flags.ShowSummary.Name),
		Parallel:         ctx.Bool(flags.Parallel.Name),
		BatchSize:        ctx.Int(flags.BatchSize.Name),
		Timeout:          ctx.Duration(flags.Timeout.Name),
		CountSuiteErrors: ctx.Bool(flags.CountSuiteErrors.Name),
		NoColor:          ctx.Bool(flags.NoColor.Name),
		ShowTable:        ctx.Bool(flags.ShowTable.Name),
		LogDir:           logDir,
		Log:              log,
	}

	fileCfg, err := resolveFileConfig(ctx.String(flags.ConfigFile.Name), ctx.IsSet(flags.ConfigFile.Name))
	if err != nil {
		return nil, err
	}
	if err := fileCfg.Apply(cfg, ctx.IsSet); err != nil {
		return nil, err
	}
	return cfg, nil
}
