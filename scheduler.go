package describe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"
)

// TestScheduler is responsible for scheduling periodic test runs.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

var _ TestScheduler = (*DefaultTestScheduler)(nil)

// DefaultTestScheduler runs the callback once, then every interval unless in run-once mode.
type DefaultTestScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	clock    clock.Clock
	callback func() error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultTestScheduler creates a new DefaultTestScheduler.
func NewDefaultTestScheduler(interval time.Duration, runOnce bool, logger log.Logger, clk clock.Clock) *DefaultTestScheduler {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &DefaultTestScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		clock:    clk,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the callback to be called when tests should run.
func (s *DefaultTestScheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Start runs the callback immediately. In continuous mode the following runs
// happen on a background goroutine and their errors are only logged.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if !s.runOnce && s.interval <= 0 {
		return errors.New("interval must be positive in continuous mode")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.callback()
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)

	if err := s.callback(); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Debug("Starting periodic test runner goroutine", "interval", s.interval)

		for {
			timer := s.clock.NewTimer(s.interval)
			select {
			case <-timer.C():
				if !s.running.Load() {
					s.logger.Debug("Service stopped, exiting periodic test runner")
					return
				}

				s.logger.Info("Running periodic tests")
				if err := s.callback(); err != nil {
					s.logger.Error("Error running periodic tests", "error", err)
				}

			case <-s.done:
				timer.Stop()
				s.logger.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				timer.Stop()
				s.logger.Debug("Context canceled, stopping periodic test runner")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop stops the scheduler.
func (s *DefaultTestScheduler) Stop() error {
	if !s.running.Swap(false) {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}

	s.logger.Debug("Sending done signal to goroutines")
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped.
func (s *DefaultTestScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
