package describe

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestDefaultTestScheduler_RunOnce(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Now())
	scheduler := NewDefaultTestScheduler(time.Minute, true, discardLogger(), fc)

	callCount := 0
	scheduler.RegisterCallback(func() error {
		callCount++
		return nil
	})

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 0, fc.WatcherCount(), "run-once mode starts no timer")
}

func TestDefaultTestScheduler_RunOnceError(t *testing.T) {
	scheduler := NewDefaultTestScheduler(0, true, discardLogger(), nil)
	want := errors.New("boom")
	scheduler.RegisterCallback(func() error { return want })

	assert.ErrorIs(t, scheduler.Start(context.Background()), want)
}

func TestDefaultTestScheduler_Periodic(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Now())
	scheduler := NewDefaultTestScheduler(time.Minute, false, discardLogger(), fc)

	calls := make(chan struct{}, 10)
	scheduler.RegisterCallback(func() error {
		calls <- struct{}{}
		return nil
	})

	require.NoError(t, scheduler.Start(context.Background()))
	<-calls // immediate run

	for i := 0; i < 3; i++ {
		fc.WaitForWatcherAndIncrement(time.Minute)
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatalf("periodic run %d did not happen", i+1)
		}
	}

	require.NoError(t, scheduler.Stop())
	assert.True(t, scheduler.Stopped())
	require.NoError(t, scheduler.WaitForShutdown(context.Background()))
	require.NoError(t, scheduler.Stop(), "stopping twice is a no-op")
}

func TestDefaultTestScheduler_ContextCancel(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Now())
	scheduler := NewDefaultTestScheduler(time.Minute, false, discardLogger(), fc)
	scheduler.RegisterCallback(func() error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, scheduler.WaitForShutdown(waitCtx))
	assert.True(t, scheduler.Stopped())
}

func TestDefaultTestScheduler_Validation(t *testing.T) {
	scheduler := NewDefaultTestScheduler(time.Minute, false, discardLogger(), nil)
	assert.Error(t, scheduler.Start(context.Background()), "callback is required")

	scheduler = NewDefaultTestScheduler(0, false, discardLogger(), nil)
	scheduler.RegisterCallback(func() error { return nil })
	assert.Error(t, scheduler.Start(context.Background()), "continuous mode needs an interval")
}
