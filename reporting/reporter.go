package reporting

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Options controls what the tree report shows
type Options struct {
	Quiet       bool // Only failed cases, and only the suites leading to them
	ShowSummary bool // Print the footer
	NoColor     bool
}

var (
	colorSuite   = text.Colors{text.FgYellow, text.Bold}
	colorPass    = text.Colors{text.FgGreen}
	colorFail    = text.Colors{text.FgRed}
	colorHeading = text.Colors{text.FgCyan, text.Bold}
	colorTime    = text.Colors{text.FgBlue}
)

// TreeReporter prints the suite tree followed by the summary footer
type TreeReporter struct {
	out  io.Writer
	opts Options
}

// NewTreeReporter creates a reporter writing to out
func NewTreeReporter(out io.Writer, opts Options) *TreeReporter {
	return &TreeReporter{out: out, opts: opts}
}

// Report writes the formatted result
func (r *TreeReporter) Report(result *types.RunResult) error {
	_, err := io.WriteString(r.out, FormatTree(result, r.opts))
	return err
}

// FormatTree renders every root in registration order, then the footer
func FormatTree(result *types.RunResult, opts Options) string {
	var b strings.Builder
	for _, root := range result.Roots {
		writeSuite(&b, root, 0, opts)
	}
	if opts.ShowSummary {
		writeSummary(&b, result, opts)
	}
	return b.String()
}

// visibleTests returns the cases shown under the current filter
func visibleTests(s *types.Suite, quiet bool) []*types.Case {
	if !quiet {
		return s.Tests
	}
	var failed []*types.Case
	for _, c := range s.Tests {
		if c.Failed() {
			failed = append(failed, c)
		}
	}
	return failed
}

// wouldPrint reports whether the suite or any descendant has a case to show
func wouldPrint(s *types.Suite, quiet bool) bool {
	if len(visibleTests(s, quiet)) > 0 {
		return true
	}
	for _, child := range s.Children {
		if wouldPrint(child, quiet) {
			return true
		}
	}
	return false
}

func writeSuite(b *strings.Builder, s *types.Suite, depth int, opts Options) {
	if !wouldPrint(s, opts.Quiet) {
		return
	}
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "\n%s%s\n", indent, paint(colorSuite, s.Name, opts))

	for _, c := range visibleTests(s, opts.Quiet) {
		if c.Failed() {
			fmt.Fprintf(b, "%s%s\n", indent, paint(colorFail, fmt.Sprintf("  └─ ⛔ %s (%s)", c.Name, types.FormatMillis(c.Duration)), opts))
			fmt.Fprintf(b, "%s%s\n", indent, paint(colorFail, "     "+c.ErrorMessage(), opts))
			continue
		}
		fmt.Fprintf(b, "%s%s\n", indent, paint(colorPass, fmt.Sprintf("  └─ ✅ %s (%s)", c.Name, types.FormatMillis(c.Duration)), opts))
	}

	for _, child := range s.Children {
		writeSuite(b, child, depth+1, opts)
	}
}

func writeSummary(b *strings.Builder, result *types.RunResult, opts Options) {
	fmt.Fprintf(b, "\n%s\n", paint(colorHeading, "Test Summary:", opts))
	fmt.Fprintf(b, "%s\n", paint(colorPass, fmt.Sprintf("  Passed: %d", result.PassedTests), opts))
	fmt.Fprintf(b, "%s\n", paint(colorFail, fmt.Sprintf("  Failed: %d", result.FailedTests), opts))
	fmt.Fprintf(b, "%s\n", paint(colorTime, fmt.Sprintf("  Time: %ss", result.ExecutionTime), opts))
}

// paint colors s, or strips it bare when colors are off; case messages may carry their own escapes
func paint(c text.Colors, s string, opts Options) string {
	if opts.NoColor {
		return stripansi.Strip(s)
	}
	return c.Sprint(s)
}

// Multi fans a result out to several reporters. Every reporter is called even if one fails.
type Multi []interface {
	Report(result *types.RunResult) error
}

func (m Multi) Report(result *types.RunResult) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
