package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/ethereum-optimism/infra/op-describe/registry"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(opts Options) *Driver {
	return NewDriver(DriverConfig{
		Log:     log.NewLogger(log.DiscardHandler()),
		Options: opts,
	})
}

func TestRunFunc_FailingCase(t *testing.T) {
	d := newTestDriver(Options{})

	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		run.Describe(ctx, types.SuiteParams{Name: "A", ID: "A"}, func(ctx context.Context, s *types.Suite) error {
			run.It(ctx, types.CaseParams{Name: "t1", ParentID: "A"}, func(ctx context.Context) error {
				return errors.New("boom")
			})
			return nil
		})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.PassedTests)
	assert.Equal(t, 1, result.FailedTests)
	assert.Equal(t, types.RunStatusFail, result.Status())

	require.Len(t, result.Roots, 1)
	a := result.Roots[0]
	require.Len(t, a.Tests, 1)
	assert.Equal(t, "t1", a.Tests[0].Name)
	assert.Equal(t, types.CaseStatusFailed, a.Tests[0].Status)
	assert.EqualError(t, a.Tests[0].Error, "boom")
}

func TestRunFunc_NestedSuite(t *testing.T) {
	d := newTestDriver(Options{})

	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		h := run.Describe(ctx, types.SuiteParams{Name: "A", ID: "A"}, func(ctx context.Context, s *types.Suite) error {
			inner := run.Describe(ctx, types.SuiteParams{Name: "B", ID: "B", ParentID: "A"}, func(ctx context.Context, s *types.Suite) error {
				return run.It(ctx, types.CaseParams{Name: "t2", ParentID: "B"}, func(ctx context.Context) error {
					return nil
				}).Wait(ctx)
			})
			return inner.Wait(ctx)
		})
		return h.Wait(ctx)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.PassedTests)
	assert.Equal(t, 0, result.FailedTests)

	require.Len(t, result.Roots, 1)
	a := result.Roots[0]
	assert.Empty(t, a.Tests)
	require.Len(t, a.Children, 1)
	b := a.Children[0]
	assert.Equal(t, "B", b.ID)
	require.Len(t, b.Tests, 1)
	assert.Equal(t, "t2", b.Tests[0].Name)
	assert.Equal(t, "A > B", b.GetPath())
}

func TestRunFunc_UnawaitedCasesAreDrained(t *testing.T) {
	d := newTestDriver(Options{})

	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		run.Describe(ctx, types.SuiteParams{Name: "S", ID: "S"}, func(ctx context.Context, s *types.Suite) error {
			for i, delay := range []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond} {
				run.It(ctx, types.CaseParams{Name: fmt.Sprintf("c%d", i), ParentID: "S"}, func(ctx context.Context) error {
					select {
					case <-time.After(delay):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				})
			}
			return nil
		})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.PassedTests)
	assert.Equal(t, 0, result.FailedTests)
	require.Len(t, result.Roots, 1)
	assert.Len(t, result.Roots[0].Tests, 3)
}

func TestRunFunc_DuplicateRootIDs(t *testing.T) {
	var buf bytes.Buffer
	d := NewDriver(DriverConfig{
		Log: log.NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		run.Describe(ctx, types.SuiteParams{Name: "S1", ID: "X"}, func(ctx context.Context, s *types.Suite) error {
			run.It(ctx, types.CaseParams{Name: "first", ParentID: s.ID}, nil)
			return nil
		})
		run.Describe(ctx, types.SuiteParams{Name: "S2", ID: "X"}, func(ctx context.Context, s *types.Suite) error {
			run.It(ctx, types.CaseParams{Name: "second", ParentID: s.ID}, nil)
			return nil
		})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, result.Roots, 2)
	assert.Equal(t, "X", result.Roots[0].ID)
	assert.Equal(t, "S2X", result.Roots[1].ID)
	assert.Contains(t, result.SuiteStack, "X")
	assert.Contains(t, result.SuiteStack, "S2X")
	require.Len(t, result.Roots[0].Tests, 1)
	assert.Equal(t, "first", result.Roots[0].Tests[0].Name, "prior results are not overwritten")
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, 2, result.PassedTests)
	assert.Contains(t, buf.String(), "There is already a suite with the ID")
}

func TestRunFunc_CounterConservation(t *testing.T) {
	d := newTestDriver(Options{})
	rng := rand.New(rand.NewSource(7))

	const suites, cases = 20, 15
	outcomes := make([][]bool, suites)
	wantFailed := 0
	for i := range outcomes {
		outcomes[i] = make([]bool, cases)
		for j := range outcomes[i] {
			outcomes[i][j] = rng.Intn(3) == 0
			if outcomes[i][j] {
				wantFailed++
			}
		}
	}

	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		for i := 0; i < suites; i++ {
			id := fmt.Sprintf("s%d", i)
			run.Describe(ctx, types.SuiteParams{Name: id, ID: id}, func(ctx context.Context, s *types.Suite) error {
				for j := 0; j < cases; j++ {
					fail := outcomes[i][j]
					run.It(ctx, types.CaseParams{Name: fmt.Sprintf("c%d", j), ParentID: id}, func(ctx context.Context) error {
						time.Sleep(time.Duration(j%3) * time.Millisecond)
						if fail {
							return errors.New("nope")
						}
						return nil
					})
				}
				return nil
			})
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, suites*cases, result.TotalTests())
	assert.Equal(t, wantFailed, result.FailedTests)

	inTree := 0
	for _, root := range result.Roots {
		inTree += root.Stats().Total
	}
	assert.Equal(t, result.TotalTests(), inTree, "every settled case is in the tree exactly once")
}

func TestRunFunc_StructuralError(t *testing.T) {
	d := newTestDriver(Options{})

	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		run.Describe(ctx, types.SuiteParams{Name: "A", ID: "A"}, func(ctx context.Context, s *types.Suite) error {
			run.It(ctx, types.CaseParams{Name: "lost", ParentID: "missing"}, nil)
			return nil
		})
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsStructuralError(err))
	assert.ErrorIs(t, err, registry.ErrSuiteNotFound)
	require.NotNil(t, result, "the result is still reported")
	require.Len(t, result.Roots, 1)
	assert.Error(t, result.Roots[0].Error)
}

func TestIt_PanicsOnUnknownSuite(t *testing.T) {
	run := NewRun(Config{Log: log.NewLogger(log.DiscardHandler())})

	defer func() {
		p := recover()
		require.NotNil(t, p)
		se, ok := p.(*StructuralError)
		require.True(t, ok)
		assert.ErrorIs(t, se, registry.ErrSuiteNotFound)
	}()
	run.It(context.Background(), types.CaseParams{Name: "x", ParentID: "nope"}, nil)
}

func TestDescribe_SuiteErrors(t *testing.T) {
	body := func(ctx context.Context, run *Run) error {
		run.Describe(ctx, types.SuiteParams{Name: "A", ID: "A"}, func(ctx context.Context, s *types.Suite) error {
			run.It(ctx, types.CaseParams{Name: "ok", ParentID: "A"}, nil)
			return errors.New("setup failed")
		})
		run.Describe(ctx, types.SuiteParams{Name: "B", ID: "B"}, func(ctx context.Context, s *types.Suite) error {
			panic("kaboom")
		})
		return nil
	}

	tests := []struct {
		name       string
		count      bool
		wantFailed int
	}{
		{name: "not counted by default", count: false, wantFailed: 0},
		{name: "counted when enabled", count: true, wantFailed: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			d := NewDriver(DriverConfig{
				Log:     log.NewLogger(slog.NewTextHandler(&buf, nil)),
				Options: Options{CountSuiteErrors: tt.count},
			})
			result, err := d.RunFunc(context.Background(), body)
			require.NoError(t, err)

			assert.Equal(t, 1, result.PassedTests)
			assert.Equal(t, tt.wantFailed, result.FailedTests)
			require.Len(t, result.Roots, 2)
			assert.EqualError(t, result.Roots[0].Error, "setup failed")
			assert.True(t, IsPanicError(result.Roots[1].Error))
			assert.Contains(t, buf.String(), "Suite failed")
		})
	}
}

func TestIt_PanicFailsCase(t *testing.T) {
	d := newTestDriver(Options{})
	result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
		run.Describe(ctx, types.SuiteParams{Name: "A"}, func(ctx context.Context, s *types.Suite) error {
			run.It(ctx, types.CaseParams{Name: "p", ParentID: s.ID}, func(ctx context.Context) error {
				panic(errors.New("bad"))
			})
			run.It(ctx, types.CaseParams{Name: "sibling", ParentID: s.ID}, nil)
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PassedTests)
	assert.Equal(t, 1, result.FailedTests)
	assert.Equal(t, "A", result.Roots[0].ID, "id defaults to the name")
}

func TestIt_Timeout(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Unix(0, 0))
	d := NewDriver(DriverConfig{
		Log:   log.NewLogger(log.DiscardHandler()),
		Clock: fc,
	})

	bodyCancelled := make(chan struct{})
	type out struct {
		result *types.RunResult
		err    error
	}
	done := make(chan out, 1)
	go func() {
		result, err := d.RunFunc(context.Background(), func(ctx context.Context, run *Run) error {
			run.Describe(ctx, types.SuiteParams{Name: "A"}, func(ctx context.Context, s *types.Suite) error {
				run.It(ctx, types.CaseParams{Name: "slow", ParentID: "A", Timeout: time.Second}, func(ctx context.Context) error {
					<-ctx.Done()
					close(bodyCancelled)
					return ctx.Err()
				})
				return nil
			})
			return nil
		})
		done <- out{result, err}
	}()

	fc.WaitForWatcherAndIncrement(time.Second)

	var o out
	select {
	case o = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after the case timed out")
	}
	require.NoError(t, o.err)
	assert.Equal(t, 1, o.result.FailedTests)

	c := o.result.Roots[0].Tests[0]
	assert.True(t, c.TimedOut)
	assert.True(t, IsTimeoutError(c.Error))
	assert.Equal(t, time.Second, c.Duration)

	select {
	case <-bodyCancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("body context was not cancelled")
	}
}

func TestRun_ResetAndTimer(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Unix(0, 0))
	run := NewRun(Config{Log: log.NewLogger(log.DiscardHandler()), Clock: fc, RunID: "fixed"})

	run.recordPass()
	run.recordFailure()
	run.Registry().PushSuite(types.SuiteParams{Name: "A", ID: "A"}, fc.Now())

	run.Reset()
	run.StartTimer()
	fc.Increment(1250 * time.Millisecond)

	passed, failed := run.Counts()
	assert.Zero(t, passed)
	assert.Zero(t, failed)
	assert.Equal(t, 0, run.Registry().Len())
	assert.Equal(t, "1.25", run.ExecutionTime())

	result := run.Result()
	assert.Equal(t, "fixed", result.RunID)
	assert.Equal(t, "1.25", result.ExecutionTime)
}
