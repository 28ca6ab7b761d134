package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree() *Suite {
	root := NewSuite(SuiteParams{Name: "root", ID: "r"}, time.Time{})
	child := NewSuite(SuiteParams{Name: "child", ID: "c", ParentID: "r"}, time.Time{})
	child.Parent = root
	child.Depth = 1
	grandchild := NewSuite(SuiteParams{Name: "grandchild", ID: "g", ParentID: "c"}, time.Time{})
	grandchild.Parent = child
	grandchild.Depth = 2

	root.Children = append(root.Children, child)
	child.Children = append(child.Children, grandchild)

	root.Tests = append(root.Tests, &Case{Name: "a", Status: CaseStatusPassed})
	grandchild.Tests = append(grandchild.Tests,
		&Case{Name: "b", Status: CaseStatusPassed},
		&Case{Name: "c", Status: CaseStatusFailed, Error: errors.New("boom")},
	)
	return root
}

func TestSuite_Stats(t *testing.T) {
	root := buildTree()

	stats := root.Stats()
	assert.Equal(t, SuiteStats{Total: 3, Passed: 2, Failed: 1}, stats)
	assert.Equal(t, SuiteStats{Total: 2, Passed: 1, Failed: 1}, root.Children[0].Stats())
}

func TestSuite_HasFailures(t *testing.T) {
	root := buildTree()
	assert.True(t, root.HasFailures())
	assert.True(t, root.Children[0].HasFailures(), "failure two levels down must surface")

	clean := NewSuite(SuiteParams{Name: "clean", ID: "x"}, time.Time{})
	clean.Tests = append(clean.Tests, &Case{Name: "ok", Status: CaseStatusPassed})
	assert.False(t, clean.HasFailures())
}

func TestSuite_WalkPreOrder(t *testing.T) {
	root := buildTree()

	var visited []string
	root.Walk(func(s *Suite) bool {
		visited = append(visited, s.ID)
		return true
	})
	assert.Equal(t, []string{"r", "c", "g"}, visited)

	visited = nil
	root.Walk(func(s *Suite) bool {
		visited = append(visited, s.ID)
		return s.ID != "c"
	})
	assert.Equal(t, []string{"r", "c"}, visited, "returning false prunes the subtree")
}

func TestSuite_GetPath(t *testing.T) {
	root := buildTree()
	grandchild := root.Children[0].Children[0]
	assert.Equal(t, "root > child > grandchild", grandchild.GetPath())
	assert.Equal(t, "root", root.GetPath())
}

func TestCase_ErrorMessage(t *testing.T) {
	c := &Case{Name: "x", Status: CaseStatusFailed, Error: errors.New("boom")}
	assert.True(t, c.Failed())
	assert.False(t, c.Passed())
	assert.Equal(t, "boom", c.ErrorMessage())

	ok := &Case{Name: "y", Status: CaseStatusPassed}
	assert.Empty(t, ok.ErrorMessage())
}

func TestRunResult_Status(t *testing.T) {
	tests := []struct {
		name   string
		result RunResult
		want   RunStatus
	}{
		{name: "all passed", result: RunResult{PassedTests: 3}, want: RunStatusPass},
		{name: "empty run", result: RunResult{}, want: RunStatusPass},
		{name: "one failure", result: RunResult{PassedTests: 3, FailedTests: 1}, want: RunStatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.result.Status())
		})
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1.50", FormatSeconds(1500*time.Millisecond))
	assert.Equal(t, "0.00", FormatSeconds(0))
	assert.Equal(t, "1.23ms", FormatMillis(1234*time.Microsecond))
	assert.Equal(t, "250.00ms", FormatMillis(250*time.Millisecond))

	r := RunResult{RunID: "abc", PassedTests: 2, FailedTests: 1, ExecutionTime: "0.10"}
	assert.Equal(t, 3, r.TotalTests())
	assert.Equal(t, "Run abc: 2 passed, 1 failed in 0.10s", r.String())
}
