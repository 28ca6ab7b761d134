package runner

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum-optimism/infra/op-describe/registry"
	"github.com/ethereum-optimism/infra/op-describe/tracker"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Options controls execution and reporting of a run
type Options struct {
	Quiet            bool          // Only report failed cases
	ShowSummary      bool          // Print the summary footer
	Parallel         bool          // Load files in batches instead of one by one
	BatchSize        int           // Files per batch; <= 0 loads all files at once
	Timeout          time.Duration // Per file, composition function and case; 0 disables
	CountSuiteErrors bool          // Count errors escaping suite bodies as failures
	NoColor          bool
}

// Config holds configuration for creating a new Run
type Config struct {
	Log     log.Logger
	Clock   clock.Clock
	RunID   string // Generated when empty
	Options Options
}

// SuiteFunc is the body of a suite
type SuiteFunc func(ctx context.Context, suite *types.Suite) error

// CaseFunc is the body of a case
type CaseFunc func(ctx context.Context) error

// Run is the context object of one execution: the suite tree, the pending
// set and the pass/fail counters all belong to it.
type Run struct {
	id       string
	log      log.Logger
	clock    clock.Clock
	opts     Options
	tracer   trace.Tracer
	registry *registry.Registry
	tracker  *tracker.Tracker

	mu      sync.Mutex
	passed  int
	failed  int
	start   time.Time
	fatal   error
	cancels []context.CancelFunc
}

// NewRun creates a run with an empty tree
func NewRun(cfg Config) *Run {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	logger := cfg.Log.New("run_id", cfg.RunID)
	return &Run{
		id:       cfg.RunID,
		log:      logger,
		clock:    cfg.Clock,
		opts:     cfg.Options,
		tracer:   otel.Tracer("describe runner"),
		registry: registry.NewRegistry(logger.New("component", "registry")),
		tracker:  tracker.New(),
		start:    cfg.Clock.Now(),
	}
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) Logger() log.Logger {
	return r.log
}

func (r *Run) Options() Options {
	return r.opts
}

func (r *Run) Registry() *registry.Registry {
	return r.registry
}

func (r *Run) Tracker() *tracker.Tracker {
	return r.tracker
}

// Reset clears counters, the suite tree and the pending set
func (r *Run) Reset() {
	r.mu.Lock()
	r.passed = 0
	r.failed = 0
	r.fatal = nil
	r.mu.Unlock()

	r.registry.Reset()
	r.tracker.Reset()
}

// StartTimer marks the start of the measured execution
func (r *Run) StartTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = r.clock.Now()
}

// Elapsed returns the time since StartTimer
func (r *Run) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.Since(r.start)
}

// ExecutionTime returns the elapsed seconds with two decimals
func (r *Run) ExecutionTime() string {
	return types.FormatSeconds(r.Elapsed())
}

// Counts returns the passed and failed counters
func (r *Run) Counts() (passed int, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passed, r.failed
}

func (r *Run) recordPass() {
	r.mu.Lock()
	r.passed++
	r.mu.Unlock()
}

func (r *Run) recordFailure() {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

// Fatal returns the first structural error of the run
func (r *Run) Fatal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func (r *Run) setFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal == nil {
		r.fatal = err
	}
}

// Wait blocks until nothing is pending
func (r *Run) Wait(ctx context.Context) error {
	return r.tracker.Drain(ctx)
}

// Result snapshots the current state of the run
func (r *Run) Result() *types.RunResult {
	elapsed := r.Elapsed()
	passed, failed := r.Counts()

	roots := r.registry.Snapshot()
	stack := make(map[string]*types.Suite, len(roots))
	for _, root := range roots {
		stack[root.ID] = root
	}
	return &types.RunResult{
		RunID:         r.id,
		PassedTests:   passed,
		FailedTests:   failed,
		ExecutionTime: types.FormatSeconds(elapsed),
		Duration:      elapsed,
		SuiteStack:    stack,
		Roots:         roots,
		Warnings:      r.registry.Warnings(),
	}
}

// release cancels the contexts handed to bodies with a time limit
func (r *Run) release() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// protect runs fn, turning a panic into an error. Structural errors are recorded on the run.
func (r *Run) protect(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if se, ok := p.(*StructuralError); ok {
				err = se
			} else {
				err = &PanicError{Value: p}
			}
		}
		if err != nil && IsStructuralError(err) {
			r.setFatal(err)
		}
	}()
	return fn(ctx)
}

// race runs fn and waits at most timeout for it. On expiry the context given to fn
// is cancelled and fn is left running unobserved.
func (r *Run) race(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) (timedOut bool, err error) {
	if timeout <= 0 {
		return false, r.protect(ctx, fn)
	}

	bodyCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- r.protect(bodyCtx, fn)
	}()

	timer := r.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return false, err
	case <-timer.C():
		cancel()
		return true, &TimeoutError{Name: name, Timeout: timeout}
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
