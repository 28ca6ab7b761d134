package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-describe/assert"
	"github.com/ethereum-optimism/infra/op-describe/runner"
	"github.com/ethereum-optimism/infra/op-describe/tracker"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"gopkg.in/yaml.v3"
)

// File is the top level of a suite file
type File struct {
	Suites []SuiteSpec `yaml:"suites"`
}

// SuiteSpec declares a suite, its cases and nested suites
type SuiteSpec struct {
	Name     string      `yaml:"name"`
	ID       string      `yaml:"id,omitempty"`
	ParentID string      `yaml:"parentId,omitempty"`
	Serial   bool        `yaml:"serial,omitempty"` // Await each case and nested suite before starting the next
	Cases    []CaseSpec  `yaml:"it,omitempty"`
	Suites   []SuiteSpec `yaml:"describe,omitempty"`
}

// CaseSpec declares a case. A case runs either an argv (Run) or a shell line (Shell).
type CaseSpec struct {
	Name    string            `yaml:"name"`
	Run     []string          `yaml:"run,omitempty"`
	Shell   string            `yaml:"shell,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty"` // Relative to the suite file
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Sleep   time.Duration     `yaml:"sleep,omitempty"` // Wait before running the command
	Expect  Expectation       `yaml:"expect,omitempty"`
}

// Expectation describes the outcome a case requires
type Expectation struct {
	ExitCode       *int     `yaml:"exitCode,omitempty"`
	Fail           bool     `yaml:"fail,omitempty"` // Any non-zero exit code
	Stdout         *string  `yaml:"stdout,omitempty"`
	StdoutContains []string `yaml:"stdoutContains,omitempty"`
	StderrContains []string `yaml:"stderrContains,omitempty"`
}

// CmdBuilder creates the command for a case
type CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// YAMLLoader loads suite files written in YAML or JSON
type YAMLLoader struct {
	Shell      string // Defaults to "sh"
	CmdBuilder CmdBuilder
}

// NewYAMLLoader creates a loader running commands with exec.CommandContext
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{
		Shell:      "sh",
		CmdBuilder: exec.CommandContext,
	}
}

// ParseFile reads and validates a suite file
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates suite file contents
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse suite file: %w", err)
	}
	for i := range f.Suites {
		if err := validateSuite(&f.Suites[i], fmt.Sprintf("suites[%d]", i)); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func validateSuite(s *SuiteSpec, where string) error {
	if s.Name == "" {
		return fmt.Errorf("%s: suite name is required", where)
	}
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("%s.it[%d]: case name is required", where, i)
		}
		if len(c.Run) > 0 && c.Shell != "" {
			return fmt.Errorf("%s.it[%d] %q: run and shell are mutually exclusive", where, i, c.Name)
		}
		if c.Expect.Fail && c.Expect.ExitCode != nil {
			return fmt.Errorf("%s.it[%d] %q: fail and exitCode are mutually exclusive", where, i, c.Name)
		}
	}
	for i := range s.Suites {
		if err := validateSuite(&s.Suites[i], fmt.Sprintf("%s.describe[%d]", where, i)); err != nil {
			return err
		}
	}
	return nil
}

// Load registers every suite of the file and waits for the root suites' bodies
func (l *YAMLLoader) Load(ctx context.Context, run *runner.Run, path string) error {
	f, err := ParseFile(path)
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(path)

	handles := make([]*tracker.Handle, 0, len(f.Suites))
	for _, spec := range f.Suites {
		handles = append(handles, l.describe(ctx, run, spec, nil, baseDir))
	}
	return waitAll(ctx, handles)
}

func (l *YAMLLoader) describe(ctx context.Context, run *runner.Run, spec SuiteSpec, parent *types.Suite, baseDir string) *tracker.Handle {
	params := types.SuiteParams{
		Name:     spec.Name,
		ID:       spec.ID,
		ParentID: spec.ParentID,
	}
	if parent != nil && params.ParentID == "" {
		params.ParentID = parent.ID
	}
	if params.ID == "" {
		params.ID = slug(spec.Name)
		if parent != nil {
			params.ID = parent.ID + "-" + params.ID
		}
	}

	return run.Describe(ctx, params, func(ctx context.Context, s *types.Suite) error {
		var handles []*tracker.Handle
		start := func(h *tracker.Handle) error {
			if !spec.Serial {
				handles = append(handles, h)
				return nil
			}
			_ = h.Wait(ctx)
			return ctx.Err()
		}

		for _, c := range spec.Cases {
			h := run.It(ctx, types.CaseParams{Name: c.Name, ParentID: s.ID, Timeout: c.Timeout}, l.caseBody(c, baseDir))
			if err := start(h); err != nil {
				return err
			}
		}
		for _, child := range spec.Suites {
			if err := start(l.describe(ctx, run, child, s, baseDir)); err != nil {
				return err
			}
		}
		return waitAll(ctx, handles)
	})
}

// waitAll waits for every handle. Settlement errors are already recorded on the
// tree, so only cancellation is returned.
func waitAll(ctx context.Context, handles []*tracker.Handle) error {
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (l *YAMLLoader) caseBody(c CaseSpec, baseDir string) runner.CaseFunc {
	return func(ctx context.Context) error {
		if c.Sleep > 0 {
			select {
			case <-time.After(c.Sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(c.Run) == 0 && c.Shell == "" {
			return nil
		}

		var cmd *exec.Cmd
		if c.Shell != "" {
			shell := l.Shell
			if shell == "" {
				shell = "sh"
			}
			cmd = l.cmdBuilder()(ctx, shell, "-c", c.Shell)
		} else {
			cmd = l.cmdBuilder()(ctx, c.Run[0], c.Run[1:]...)
		}

		cmd.Dir = baseDir
		if c.Dir != "" {
			cmd.Dir = filepath.Join(baseDir, c.Dir)
		}
		if len(c.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range c.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		exitCode := 0
		if runErr := cmd.Run(); runErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			exitErr := &exec.ExitError{}
			if !errors.As(runErr, &exitErr) {
				return fmt.Errorf("failed to run command: %w", runErr)
			}
			exitCode = exitErr.ExitCode()
		}

		return checkExpectation(c.Expect, exitCode, stdout.String(), stderr.String())
	}
}

func (l *YAMLLoader) cmdBuilder() CmdBuilder {
	if l.CmdBuilder == nil {
		return exec.CommandContext
	}
	return l.CmdBuilder
}

func checkExpectation(e Expectation, exitCode int, stdout, stderr string) error {
	var checks []error
	switch {
	case e.Fail:
		checks = append(checks, assert.NotEqual(exitCode, 0, fmt.Sprintf("expected a non-zero exit code\n%s", tail(stderr))))
	case e.ExitCode != nil:
		checks = append(checks, assert.Equal(exitCode, *e.ExitCode, fmt.Sprintf("expected exit code %d, got %d\n%s", *e.ExitCode, exitCode, tail(stderr))))
	default:
		checks = append(checks, assert.Equal(exitCode, 0, fmt.Sprintf("command failed with exit code %d\n%s", exitCode, tail(stderr))))
	}
	if e.Stdout != nil {
		checks = append(checks, assert.Equal(stdout, *e.Stdout))
	}
	for _, want := range e.StdoutContains {
		checks = append(checks, assert.Contains(stdout, want))
	}
	for _, want := range e.StderrContains {
		checks = append(checks, assert.Contains(stderr, want))
	}
	return assert.All(checks...)
}

// tail returns the last lines of command output for error messages
func tail(s string) string {
	const maxLines = 10
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slug lowercases a name and joins its words with dashes
func slug(name string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
