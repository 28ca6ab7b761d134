package describe

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-describe/exitcodes"
	"github.com/ethereum-optimism/infra/op-describe/runner"
	"github.com/ethereum-optimism/infra/op-describe/types"
)

// RuntimeError aborts a run before it can produce a trustworthy result:
// bad configuration, an unreadable test directory, or a registration the
// suite tree cannot accept.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("run aborted: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err aborted the run. A structural error
// counts even when nothing wrapped it in a RuntimeError.
func IsRuntimeError(err error) bool {
	if err == nil {
		return false
	}
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr) || runner.IsStructuralError(err)
}

// TestFailureError reports a run that completed with recorded failures
type TestFailureError struct {
	RunID  string
	Failed int
	Total  int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("%d of %d cases failed in run %s", e.Failed, e.Total, e.RunID)
}

// NewTestFailureError returns nil when the result holds no failures
func NewTestFailureError(result *types.RunResult) error {
	if result == nil || result.Status() != types.RunStatusFail {
		return nil
	}
	return &TestFailureError{
		RunID:  result.RunID,
		Failed: result.FailedTests,
		Total:  result.TotalTests(),
	}
}

func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// ExitCode maps the error returned by Start to the process exit code.
// Unclassified errors count as failures.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.TestFailure
	}
}
