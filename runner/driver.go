package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum-optimism/infra/op-describe/metrics"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Loader executes one source file against a run. Loading a file typically
// registers suites and cases through run.Describe and run.It.
type Loader interface {
	Load(ctx context.Context, run *Run, path string) error
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(ctx context.Context, run *Run, path string) error

func (f LoaderFunc) Load(ctx context.Context, run *Run, path string) error {
	return f(ctx, run, path)
}

// Reporter receives the final result of a run
type Reporter interface {
	Report(result *types.RunResult) error
}

// DriverConfig holds configuration for creating a new Driver
type DriverConfig struct {
	Log      log.Logger
	Clock    clock.Clock
	Loader   Loader
	Reporter Reporter // Optional
	Options  Options
	Preload  []string // Files loaded one by one before the others
	RunID    string   // Optional; a new id is generated for every run when empty
}

// Driver executes a collection of sources, waits for everything they started,
// then reports. Every invocation gets a fresh Run.
type Driver struct {
	log      log.Logger
	clock    clock.Clock
	loader   Loader
	reporter Reporter
	opts     Options
	preload  []string
	runID    string
	tracer   trace.Tracer
}

// NewDriver creates a new driver
func NewDriver(cfg DriverConfig) *Driver {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	return &Driver{
		log:      cfg.Log,
		clock:    cfg.Clock,
		loader:   cfg.Loader,
		reporter: cfg.Reporter,
		opts:     cfg.Options,
		preload:  cfg.Preload,
		runID:    cfg.RunID,
		tracer:   otel.Tracer("describe driver"),
	}
}

func (d *Driver) newRun() *Run {
	run := NewRun(Config{
		Log:     d.log,
		Clock:   d.clock,
		RunID:   d.runID,
		Options: d.opts,
	})
	run.Reset()
	run.StartTimer()
	return run
}

// RunFiles loads every file, waits for all pending work and reports.
// A file that fails to load counts as one failure and does not stop the run.
// The returned error is non-nil only for structural errors or cancellation;
// test failures are visible in the result.
func (d *Driver) RunFiles(ctx context.Context, files []string) (*types.RunResult, error) {
	if d.loader == nil && len(files)+len(d.preload) > 0 {
		return nil, errors.New("no loader configured")
	}

	run := d.newRun()
	ctx, span := d.tracer.Start(ctx, "run files")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID()), attribute.Int("files", len(files)))

	d.log.Debug("Running files", "run_id", run.ID(), "files", len(files), "preload", len(d.preload),
		"parallel", d.opts.Parallel, "batchSize", d.opts.BatchSize, "timeout", d.opts.Timeout)

	for _, file := range d.preload {
		d.runFile(ctx, run, file)
	}

	if d.opts.Parallel {
		d.runBatches(ctx, run, files)
	} else {
		for _, file := range files {
			if ctx.Err() != nil {
				break
			}
			d.runFile(ctx, run, file)
		}
	}

	return d.finish(ctx, run)
}

// RunFunc runs a single composition function, waits for all pending work and reports
func (d *Driver) RunFunc(ctx context.Context, fn func(ctx context.Context, run *Run) error) (*types.RunResult, error) {
	run := d.newRun()
	ctx, span := d.tracer.Start(ctx, "run function")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID()))

	_, err := run.race(ctx, "test function", d.opts.Timeout, func(ctx context.Context) error {
		return fn(ctx, run)
	})
	if err != nil {
		d.log.Error("Error running tests", "err", err)
		run.recordFailure()
	}

	return d.finish(ctx, run)
}

func (d *Driver) runBatches(ctx context.Context, run *Run, files []string) {
	batchSize := d.opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(files)
	}

	for start := 0; start < len(files); start += batchSize {
		if ctx.Err() != nil {
			return
		}
		end := min(start+batchSize, len(files))
		batch := files[start:end]
		d.log.Debug("Running batch", "from", start, "size", len(batch))

		p := pool.New()
		for _, file := range batch {
			p.Go(func() {
				d.runFile(ctx, run, file)
			})
		}
		p.Wait()
	}
}

// runFile loads one file. Failures are logged and counted.
func (d *Driver) runFile(ctx context.Context, run *Run, file string) {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("file %s", filepath.Base(file)))
	defer span.End()

	timedOut, err := run.race(ctx, fmt.Sprintf("test file %s", file), d.opts.Timeout, func(ctx context.Context) error {
		return d.loader.Load(ctx, run, file)
	})
	if err == nil {
		return
	}

	reason := "error"
	switch {
	case timedOut:
		reason = "timeout"
	case IsPanicError(err):
		reason = "panic"
	}
	d.log.Error("Error running test file", "file", file, "reason", reason, "err", err)
	span.RecordError(err)
	metrics.RecordFileFailure(reason)
	run.recordFailure()
}

// finish waits for everything still pending, then builds and reports the result
func (d *Driver) finish(ctx context.Context, run *Run) (*types.RunResult, error) {
	defer run.release()

	var waitErr error
	if err := run.Wait(ctx); err != nil {
		waitErr = fmt.Errorf("waiting for pending tests: %w", err)
		d.log.Error("Stopped waiting for pending tests", "pending", run.Tracker().Pending(), "err", err)
	}

	result := run.Result()
	metrics.RecordRun(result.Status(), result.PassedTests, result.FailedTests, result.Duration)

	if d.reporter != nil {
		if err := d.reporter.Report(result); err != nil {
			d.log.Error("Error reporting results", "err", err)
		}
	}

	if fatal := run.Fatal(); fatal != nil {
		return result, fatal
	}
	return result, waitErr
}
