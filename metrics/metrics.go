package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "describe"
)

var (
	Debug                bool = true
	validStatuses             = []types.CaseStatus{types.CaseStatusPassed, types.CaseStatusFailed}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of settled cases",
	}, []string{
		"status",
	})

	caseTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "case_timeouts_total",
		Help:      "Count of cases failed by timeout",
	})

	suiteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_errors_total",
		Help:      "Count of errors escaping suite bodies",
	})

	duplicateSuitesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "duplicate_suites_total",
		Help:      "Count of root suites registered under an id already in use",
	})

	fileFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "file_failures_total",
		Help:      "Count of source files that failed to load",
	}, []string{
		"reason",
	})

	caseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Duration of settled cases",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_result",
		Help:      "Result of the last run, 1 for the reported status",
	}, []string{
		"result",
	})

	runPassed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_passed",
		Help:      "Number of passed cases in the last run",
	})

	runFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_failed",
		Help:      "Number of failures in the last run",
	})

	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_duration_seconds",
		Help:      "Duration of the last run",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed runs",
	}, []string{
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordCase records one settled case
func RecordCase(status types.CaseStatus, duration time.Duration, timedOut bool) {
	if !isValidStatus(status) {
		log.Error("RecordCase - invalid status", "status", status)
		return
	}
	casesTotal.WithLabelValues(string(status)).Inc()
	caseDuration.Observe(duration.Seconds())
	if timedOut {
		caseTimeoutsTotal.Inc()
	}
}

func RecordSuiteError() {
	suiteErrorsTotal.Inc()
}

func RecordDuplicateSuite() {
	duplicateSuitesTotal.Inc()
}

// RecordFileFailure records a source file that failed to load; reason is "error", "timeout" or "panic"
func RecordFileFailure(reason string) {
	fileFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRun sets the last-run gauges
func RecordRun(result types.RunStatus, passed int, failed int, duration time.Duration) {
	for _, status := range []types.RunStatus{types.RunStatusPass, types.RunStatusFail} {
		value := 0.0
		if status == result {
			value = 1
		}
		runResult.WithLabelValues(string(status)).Set(value)
	}
	runPassed.Set(float64(passed))
	runFailed.Set(float64(failed))
	runDuration.Set(duration.Seconds())
	runsTotal.WithLabelValues(string(result)).Inc()
}

func isValidStatus(status types.CaseStatus) bool {
	return slices.Contains(validStatuses, status)
}
