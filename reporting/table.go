package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders a run as an ASCII table with one row per suite and, optionally, per case
type TableFormatter struct {
	title     string
	showCases bool
	noColor   bool
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(title string, showCases, noColor bool) *TableFormatter {
	return &TableFormatter{
		title:     title,
		showCases: showCases,
		noColor:   noColor,
	}
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// Format renders the result
func (f *TableFormatter) Format(result *types.RunResult) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(f.title)
	t.AppendHeader(table.Row{"TYPE", "ID", "DURATION", "TESTS", "PASSED", "FAILED", "STATUS"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TYPE", AutoMerge: true},
		{Name: "ID", WidthMax: 200, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
	})

	for _, root := range result.Roots {
		root.Walk(func(s *types.Suite) bool {
			f.addSuiteRows(t, s)
			return true
		})
	}

	switch {
	case f.noColor:
		t.SetStyle(table.StyleLight)
	case result.Status() == types.RunStatusFail:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.TotalTests(),
		result.PassedTests,
		result.FailedTests,
		strings.ToUpper(string(result.Status())),
	})

	t.Render()
	return buf.String(), nil
}

func (f *TableFormatter) addSuiteRows(t table.Writer, s *types.Suite) {
	stats := s.Stats()
	status := "PASS"
	switch {
	case s.Error != nil:
		status = "ERROR"
	case stats.Failed > 0:
		status = "FAIL"
	}
	t.AppendRow(table.Row{
		"Suite",
		suitePrefix(s) + s.Name,
		formatDuration(s.Duration),
		stats.Total,
		stats.Passed,
		stats.Failed,
		status,
	})

	if !f.showCases {
		return
	}
	indent := strings.Repeat(treeIndent, s.Depth+1)
	for _, c := range s.Tests {
		passed, failed := 1, 0
		if c.Failed() {
			passed, failed = 0, 1
		}
		t.AppendRow(table.Row{
			"Test",
			indent + c.Name,
			formatDuration(c.Duration),
			1,
			passed,
			failed,
			strings.ToUpper(string(c.Status)),
		})
	}
}
