// Package exitcodes defines the exit codes of op-describe.
package exitcodes

// * Success (0): every counted case passed
// * TestFailure (1): at least one failure was recorded
// * RuntimeErr (2): configuration errors, structural errors or panics
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)

// For maps the outcome of a run to its exit code
func For(failed int, runtimeErr error) int {
	switch {
	case runtimeErr != nil:
		return RuntimeErr
	case failed > 0:
		return TestFailure
	default:
		return Success
	}
}
