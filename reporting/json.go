package reporting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-describe/types"
)

// RunJSON is the JSON form of a run result
type RunJSON struct {
	RunID         string           `json:"runId"`
	Status        types.RunStatus  `json:"status"`
	PassedTests   int              `json:"passedTests"`
	FailedTests   int              `json:"failedTests"`
	ExecutionTime string           `json:"executionTime"`
	Duration      time.Duration    `json:"duration"`
	Suites        []SuiteJSON      `json:"suites"`
	FailedCases   []string         `json:"failedCases"`
	Warnings      []string         `json:"warnings,omitempty"`
	Stats         types.SuiteStats `json:"stats"`
}

// SuiteJSON is the JSON form of a suite node
type SuiteJSON struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	ParentID string        `json:"parentId,omitempty"`
	Path     string        `json:"path"`
	Depth    int           `json:"depth"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Tests    []CaseJSON    `json:"tests"`
	Children []SuiteJSON   `json:"children,omitempty"`
}

// CaseJSON is the JSON form of a case
type CaseJSON struct {
	Name     string           `json:"name"`
	Status   types.CaseStatus `json:"status"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`
	TimedOut bool             `json:"timedOut,omitempty"`
}

// NewRunJSON converts a result into its JSON form. Error messages are stripped of ANSI codes.
func NewRunJSON(result *types.RunResult) RunJSON {
	out := RunJSON{
		RunID:         result.RunID,
		Status:        result.Status(),
		PassedTests:   result.PassedTests,
		FailedTests:   result.FailedTests,
		ExecutionTime: result.ExecutionTime,
		Duration:      result.Duration,
		Suites:        make([]SuiteJSON, 0, len(result.Roots)),
		FailedCases:   make([]string, 0),
		Warnings:      result.Warnings,
	}
	for _, root := range result.Roots {
		out.Suites = append(out.Suites, suiteJSON(root, &out.FailedCases))
		stats := root.Stats()
		out.Stats.Total += stats.Total
		out.Stats.Passed += stats.Passed
		out.Stats.Failed += stats.Failed
	}
	return out
}

func suiteJSON(s *types.Suite, failed *[]string) SuiteJSON {
	node := SuiteJSON{
		ID:       s.ID,
		Name:     s.Name,
		ParentID: s.ParentID,
		Path:     s.GetPath(),
		Depth:    s.Depth,
		Duration: s.Duration,
		Tests:    make([]CaseJSON, 0, len(s.Tests)),
	}
	if s.Error != nil {
		node.Error = stripansi.Strip(s.Error.Error())
	}
	for _, c := range s.Tests {
		node.Tests = append(node.Tests, CaseJSON{
			Name:     c.Name,
			Status:   c.Status,
			Duration: c.Duration,
			Error:    stripansi.Strip(c.ErrorMessage()),
			TimedOut: c.TimedOut,
		})
		if c.Failed() {
			*failed = append(*failed, s.GetPath()+" > "+c.Name)
		}
	}
	for _, child := range s.Children {
		node.Children = append(node.Children, suiteJSON(child, failed))
	}
	return node
}

// FormatJSON renders the result as indented JSON
func FormatJSON(result *types.RunResult) ([]byte, error) {
	data, err := json.MarshalIndent(NewRunJSON(result), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	return data, nil
}
