package types

import (
	"fmt"
	"strings"
	"time"
)

// CaseStatus represents the possible states of a test case
type CaseStatus string

const (
	CaseStatusPending CaseStatus = "pending"
	CaseStatusPassed  CaseStatus = "passed"
	CaseStatusFailed  CaseStatus = "failed"
)

// SuiteParams describes a suite registration
type SuiteParams struct {
	Name     string
	ID       string
	ParentID string // Empty for root suites
}

// CaseParams describes a case registration
type CaseParams struct {
	Name     string
	ParentID string
	Timeout  time.Duration // Overrides the run timeout when non-zero
}

// Case captures the outcome of a single test case.
// A case is appended to its suite once it has settled and is never mutated afterwards.
type Case struct {
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Status    CaseStatus
	Error     error
	TimedOut  bool
}

// Passed reports whether the case settled successfully
func (c *Case) Passed() bool {
	return c.Status == CaseStatusPassed
}

// Failed reports whether the case settled with an error
func (c *Case) Failed() bool {
	return c.Status == CaseStatusFailed
}

// ErrorMessage returns the failure message, or an empty string
func (c *Case) ErrorMessage() string {
	if c.Error == nil {
		return ""
	}
	return c.Error.Error()
}

// Suite is a node in the suite tree
type Suite struct {
	// Node identity
	ID       string
	Name     string
	ParentID string

	// Hierarchy
	Children []*Suite
	Tests    []*Case
	Parent   *Suite // Parent node (nil for roots), not owning
	Depth    int    // Depth in tree (0 = root)

	// Execution data
	StartTime time.Time
	Duration  time.Duration
	Error     error // Error that escaped the suite body, if any
}

// NewSuite creates a suite node with empty children and tests
func NewSuite(params SuiteParams, start time.Time) *Suite {
	return &Suite{
		ID:        params.ID,
		Name:      params.Name,
		ParentID:  params.ParentID,
		Children:  make([]*Suite, 0),
		Tests:     make([]*Case, 0),
		StartTime: start,
	}
}

// GetPath returns the names from the root to this suite joined by " > "
func (s *Suite) GetPath() string {
	var parts []string
	for node := s; node != nil; node = node.Parent {
		parts = append([]string{node.Name}, parts...)
	}
	return strings.Join(parts, " > ")
}

// HasFailures reports whether this suite or any descendant holds a failed case
func (s *Suite) HasFailures() bool {
	for _, c := range s.Tests {
		if c.Failed() {
			return true
		}
	}
	for _, child := range s.Children {
		if child.HasFailures() {
			return true
		}
	}
	return false
}

// Stats returns the case counts of this suite including its descendants
func (s *Suite) Stats() SuiteStats {
	var stats SuiteStats
	s.Walk(func(node *Suite) bool {
		for _, c := range node.Tests {
			stats.Total++
			switch c.Status {
			case CaseStatusPassed:
				stats.Passed++
			case CaseStatusFailed:
				stats.Failed++
			}
		}
		return true
	})
	return stats
}

// Walk traverses the suite and its descendants in pre-order.
// Returning false from fn skips the children of that node.
func (s *Suite) Walk(fn func(*Suite) bool) {
	if !fn(s) {
		return
	}
	for _, child := range s.Children {
		child.Walk(fn)
	}
}

// SuiteStats contains aggregated case counts
type SuiteStats struct {
	Total  int
	Passed int
	Failed int
}

// RunStatus is the overall outcome of a run
type RunStatus string

const (
	RunStatusPass RunStatus = "pass"
	RunStatusFail RunStatus = "fail"
)

// RunResult is the outcome of one driver invocation
type RunResult struct {
	RunID         string
	PassedTests   int
	FailedTests   int
	ExecutionTime string        // Seconds with two decimals, e.g. "1.25"
	Duration      time.Duration // Same value as ExecutionTime
	SuiteStack    map[string]*Suite
	Roots         []*Suite // Roots in registration order
	Warnings      []string
}

// TotalTests returns the number of counted outcomes
func (r *RunResult) TotalTests() int {
	return r.PassedTests + r.FailedTests
}

// Status returns fail when any failure was recorded
func (r *RunResult) Status() RunStatus {
	if r.FailedTests > 0 {
		return RunStatusFail
	}
	return RunStatusPass
}

// String returns a one-line summary of the run
func (r *RunResult) String() string {
	return fmt.Sprintf("Run %s: %d passed, %d failed in %ss", r.RunID, r.PassedTests, r.FailedTests, r.ExecutionTime)
}

// FormatSeconds renders a duration as seconds with two decimals
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}

// FormatMillis renders a duration as milliseconds with two decimals
func FormatMillis(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
