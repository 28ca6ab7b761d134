// Package describe runs suite files discovered in a test directory, once or
// periodically, and reports every run to the console, per-run log files and
// the optional HTTP service.
package describe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-describe/discovery"
	"github.com/ethereum-optimism/infra/op-describe/exitcodes"
	"github.com/ethereum-optimism/infra/op-describe/loader"
	"github.com/ethereum-optimism/infra/op-describe/logging"
	"github.com/ethereum-optimism/infra/op-describe/reporting"
	"github.com/ethereum-optimism/infra/op-describe/runner"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// engine implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &engine{}

// Service is a background component started and stopped with the engine
type Service interface {
	Start(ctx context.Context)
	Shutdown()
}

// engine discovers suite files and runs them through a fresh driver per run.
type engine struct {
	ctx       context.Context
	config    *Config
	version   string
	clock     clock.Clock
	loader    runner.Loader
	out       io.Writer
	reporters reporting.Multi
	sinks     []logging.ResultSink
	services  []Service
	scheduler TestScheduler

	mu     sync.Mutex
	result *types.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes the engine
type Option func(*engine)

// WithLoader replaces the default suite file loader
func WithLoader(l runner.Loader) Option {
	return func(e *engine) {
		e.loader = l
	}
}

// WithOutput sets where the tree report and the table are printed
func WithOutput(w io.Writer) Option {
	return func(e *engine) {
		e.out = w
	}
}

// WithReporter adds a reporter receiving every run result
func WithReporter(r runner.Reporter) Option {
	return func(e *engine) {
		e.reporters = append(e.reporters, r)
	}
}

// WithSink adds a sink to every run's file logger. It sees each result
// after the built-in log files are written, then Complete with the run id.
func WithSink(s logging.ResultSink) Option {
	return func(e *engine) {
		e.sinks = append(e.sinks, s)
	}
}

// WithService starts s with the engine and shuts it down on Stop
func WithService(s Service) Option {
	return func(e *engine) {
		e.services = append(e.services, s)
	}
}

// WithClock sets the clock used for timing, timeouts and the run interval
func WithClock(c clock.Clock) Option {
	return func(e *engine) {
		e.clock = c
	}
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts ...Option) (*engine, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config.Log is required")
	}

	config.Log.Debug("Creating op-describe with config",
		"testDir", config.TestDir,
		"configFile", config.ConfigFile,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"parallel", config.Parallel,
		"batchSize", config.BatchSize,
		"timeout", config.Timeout)

	e := &engine{
		ctx:              ctx,
		config:           config,
		version:          version,
		clock:            clock.NewClock(),
		loader:           loader.Default(),
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.scheduler = NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log, e.clock)
	e.scheduler.RegisterCallback(e.runTests)
	return e, nil
}

// Start runs the suites immediately, then periodically unless in run-once mode.
// Start implements the cliapp.Lifecycle interface.
func (e *engine) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			e.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	e.ctx = ctx
	e.running.Store(true)

	for _, s := range e.services {
		s.Start(ctx)
	}

	if e.config.RunOnce {
		e.config.Log.Info("Starting op-describe in run-once mode", "version", e.version)
	} else {
		e.config.Log.Info("Starting op-describe in continuous mode", "version", e.version, "interval", e.config.RunInterval)
	}

	if err := e.scheduler.Start(ctx); err != nil {
		e.config.Log.Error("Runtime error running tests", "error", err)
		if IsRuntimeError(err) {
			return err
		}
		return NewRuntimeError(err)
	}

	if e.config.RunOnce {
		e.config.Log.Info("Tests completed, exiting (run-once mode)")

		if err := NewTestFailureError(e.LastResult()); err != nil {
			e.config.Log.Warn("Run-once test run completed with failures", "exit_code", ExitCode(err), "error", err)
			return err
		}

		go func() {
			if e.shutdownCallback != nil {
				e.shutdownCallback(nil)
			}
		}()
		return nil
	}

	e.config.Log.Debug("op-describe started successfully")
	return nil
}

// runTests discovers the suite files and runs them once
func (e *engine) runTests() error {
	cfg := e.config
	opts := discovery.Options{Include: cfg.Include, Exclude: cfg.Exclude}

	files, err := discovery.Find(e.ctx, cfg.TestDir, opts)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to discover suite files: %w", err))
	}
	preload, err := discovery.Expand(e.ctx, cfg.Preload, opts)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to resolve preload files: %w", err))
	}
	files = withoutPaths(files, preload)
	if len(files)+len(preload) == 0 {
		cfg.Log.Warn("No suite files found", "testDir", cfg.TestDir, "include", opts.Include)
	}

	runID := uuid.New().String()
	fileLogger, err := logging.NewFileLogger(cfg.LogDir, runID)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}
	for _, sink := range e.sinks {
		fileLogger.AddSink(sink)
	}

	reporters := reporting.Multi{
		reporting.NewTreeReporter(e.out, reporting.Options{
			Quiet:       cfg.Quiet,
			ShowSummary: cfg.ShowSummary,
			NoColor:     cfg.NoColor,
		}),
		fileLogger,
	}
	reporters = append(reporters, e.reporters...)

	driver := runner.NewDriver(runner.DriverConfig{
		Log:      cfg.Log,
		Clock:    e.clock,
		Loader:   e.loader,
		Reporter: reporters,
		Options:  cfg.RunnerOptions(),
		Preload:  preload,
		RunID:    runID,
	})

	cfg.Log.Info("Running suite files...", "run_id", runID, "files", len(files), "preload", len(preload))
	result, err := driver.RunFiles(e.ctx, files)
	if result != nil {
		e.setResult(result)
	}
	if err != nil {
		cfg.Log.Error("Runtime error running tests", "run_id", runID, "error", err)
		return NewRuntimeError(err)
	}

	if cfg.ShowTable {
		e.printResultsTable(result)
	}
	cfg.Log.Info("Test run completed",
		"run_id", result.RunID,
		"status", result.Status(),
		"passed", result.PassedTests,
		"failed", result.FailedTests,
		"logs", fileLogger.GetLogDir())
	return nil
}

func (e *engine) printResultsTable(result *types.RunResult) {
	title := fmt.Sprintf("Test Results (%ss)", result.ExecutionTime)
	out, err := reporting.NewTableFormatter(title, true, e.config.NoColor).Format(result)
	if err != nil {
		e.config.Log.Error("Error formatting results table", "error", err)
		return
	}
	fmt.Fprint(e.out, out)
}

func (e *engine) setResult(result *types.RunResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = result
}

// LastResult returns the result of the most recent run, or nil
func (e *engine) LastResult() *types.RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Stop stops the op-describe service.
// Stop implements the cliapp.Lifecycle interface.
func (e *engine) Stop(ctx context.Context) error {
	e.config.Log.Info("Stopping op-describe")

	if !e.running.Swap(false) {
		e.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	if err := e.scheduler.Stop(); err != nil {
		e.config.Log.Error("Error stopping scheduler", "error", err)
	}
	if err := e.scheduler.WaitForShutdown(ctx); err != nil {
		e.config.Log.Warn("Scheduler did not shut down cleanly", "error", err)
	}
	for _, s := range e.services {
		s.Shutdown()
	}

	e.config.Log.Info("op-describe stopped successfully")
	return nil
}

// Stopped returns true if the op-describe service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (e *engine) Stopped() bool {
	return !e.running.Load()
}

// withoutPaths drops every entry of files that also appears in skip
func withoutPaths(files, skip []string) []string {
	if len(skip) == 0 {
		return files
	}
	seen := make(map[string]bool, len(skip))
	for _, p := range skip {
		seen[p] = true
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !seen[f] {
			out = append(out, f)
		}
	}
	return out
}
