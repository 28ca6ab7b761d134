package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-describe/reporting"
	"github.com/ethereum-optimism/infra/op-describe/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
	AllLogsFilename    = "all.log"
	ResultsFilename    = "results.json"
	FailedDirname      = "failed"
)

// ResultSink is an interface for different ways of consuming a run result
type ResultSink interface {
	// Consume processes the result of a run
	Consume(result *types.RunResult) error
	// Complete is called once the result has been consumed by every sink
	Complete(runID string) error
}

// FileLogger writes the outcome of one run below <baseDir>/testrun-<runID>/
type FileLogger struct {
	baseDir      string                // Base directory for logs
	logDir       string                // Directory of this run
	failedDir    string                // Directory for failed cases
	mu           sync.Mutex            // Protects concurrent file operations
	sinks        []ResultSink          // Collection of result consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates the run directory and the default sinks
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, FailedDirname)
	for _, dir := range []string{baseDir, logDir, failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		failedDir:    failedDir,
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}
	logger.sinks = []ResultSink{
		&SummarySink{logger: logger},
		&AllLogsFileSink{logger: logger},
		&FailedCaseSink{logger: logger},
		&JSONResultSink{logger: logger},
	}
	return logger, nil
}

func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close()
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// AddSink registers an additional consumer
func (l *FileLogger) AddSink(sink ResultSink) {
	l.sinks = append(l.sinks, sink)
}

// Report feeds the result to every sink and closes the files.
// It lets a FileLogger act as a run reporter.
func (l *FileLogger) Report(result *types.RunResult) error {
	for _, sink := range l.sinks {
		if err := sink.Consume(result); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return l.Complete(result.RunID)
}

// Complete finalizes all sinks and closes all file writers
func (l *FileLogger) Complete(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	defer l.closeAllWriters()

	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}
	return nil
}

// GetRunID returns the run this logger writes for
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetLogDir returns the directory of this run
func (l *FileLogger) GetLogDir() string {
	return l.logDir
}

// GetFailedDir returns the directory containing logs for failed cases
func (l *FileLogger) GetFailedDir() string {
	return l.failedDir
}

// GetSummaryFile returns the path to the summary file
func (l *FileLogger) GetSummaryFile() string {
	return filepath.Join(l.logDir, SummaryFilename)
}

// GetAllLogsFile returns the path to the all logs file
func (l *FileLogger) GetAllLogsFile() string {
	return filepath.Join(l.logDir, AllLogsFilename)
}

// GetResultsFile returns the path to the JSON results
func (l *FileLogger) GetResultsFile() string {
	return filepath.Join(l.logDir, ResultsFilename)
}

// SummarySink writes the plain-text tree report
type SummarySink struct {
	logger *FileLogger
}

func (s *SummarySink) Consume(result *types.RunResult) error {
	content := reporting.FormatTree(result, reporting.Options{ShowSummary: true, NoColor: true})
	writer, err := s.logger.getAsyncWriter(s.logger.GetSummaryFile())
	if err != nil {
		return err
	}
	return writer.Write([]byte(stripansi.Strip(content)))
}

func (s *SummarySink) Complete(string) error {
	return nil
}

// AllLogsFileSink writes one line per case, failures with their message
type AllLogsFileSink struct {
	logger *FileLogger
}

func (s *AllLogsFileSink) Consume(result *types.RunResult) error {
	writer, err := s.logger.getAsyncWriter(s.logger.GetAllLogsFile())
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", result.RunID)
	for _, root := range result.Roots {
		root.Walk(func(suite *types.Suite) bool {
			if suite.Error != nil {
				fmt.Fprintf(&b, "[SUITE ERROR] %s: %s\n", suite.GetPath(), stripansi.Strip(suite.Error.Error()))
			}
			for _, c := range suite.Tests {
				fmt.Fprintf(&b, "[%s] %s > %s (%s)\n", strings.ToUpper(string(c.Status)), suite.GetPath(), c.Name, types.FormatMillis(c.Duration))
				if c.Failed() {
					b.WriteString(indentText(stripansi.Strip(c.ErrorMessage()), "    "))
				}
			}
			return true
		})
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "[WARN] %s\n", w)
	}
	return writer.Write([]byte(b.String()))
}

func (s *AllLogsFileSink) Complete(string) error {
	return nil
}

// FailedCaseSink writes one file per failed case into the failed directory
type FailedCaseSink struct {
	logger *FileLogger
}

func (s *FailedCaseSink) Consume(result *types.RunResult) error {
	var firstErr error
	for _, root := range result.Roots {
		root.Walk(func(suite *types.Suite) bool {
			for _, c := range suite.Tests {
				if !c.Failed() {
					continue
				}
				if err := s.write(suite, c); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return true
		})
	}
	return firstErr
}

func (s *FailedCaseSink) write(suite *types.Suite, c *types.Case) error {
	name := safeFilename(suite.GetPath()) + "__" + safeFilename(c.Name) + ".log"
	path := filepath.Join(s.logger.failedDir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "Suite: %s\n", suite.GetPath())
	fmt.Fprintf(&b, "Suite ID: %s\n", suite.ID)
	fmt.Fprintf(&b, "Case: %s\n", c.Name)
	fmt.Fprintf(&b, "Duration: %s\n", types.FormatMillis(c.Duration))
	if c.TimedOut {
		b.WriteString("Timed out: true\n")
	}
	b.WriteString("\nError:\n")
	b.WriteString(indentText(stripansi.Strip(c.ErrorMessage()), "  "))

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write failed case log %s: %w", path, err)
	}
	return nil
}

func (s *FailedCaseSink) Complete(string) error {
	return nil
}

// JSONResultSink writes the result tree as JSON
type JSONResultSink struct {
	logger *FileLogger
}

func (s *JSONResultSink) Consume(result *types.RunResult) error {
	data, err := reporting.FormatJSON(result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.logger.GetResultsFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

func (s *JSONResultSink) Complete(string) error {
	return nil
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.ReplaceAll(s, " > ", "-")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	s = strings.ReplaceAll(s, "?", "_")
	s = strings.ReplaceAll(s, "\"", "_")
	s = strings.ReplaceAll(s, "<", "_")
	s = strings.ReplaceAll(s, ">", "_")
	s = strings.ReplaceAll(s, "|", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "...", "")
	return s
}

// indentText prefixes every line with indent
func indentText(text, indent string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n") + "\n"
}
