package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notebook-infra/nb-acceptor/types"
)

const (
	MetricsNamespace = "nbat"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	notebooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "notebooks_total",
		Help:      "Count of executed notebooks",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	envBuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "env_builds_total",
		Help:      "Count of base environment builds",
	})

	cloneErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "clone_errors_total",
		Help:      "Count of failed environment clones",
	})

	acceptanceResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "acceptance_results",
		Help:      "Result of notebook acceptance runs",
	}, []string{
		"run_id",
		"result",
	})

	acceptanceTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "acceptance_test_total",
		Help:      "Total number of notebooks per run",
	}, []string{
		"run_id",
	})

	acceptanceTestPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "acceptance_test_passed",
		Help:      "Number of passed notebooks per run",
	}, []string{
		"run_id",
	})

	acceptanceTestFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "acceptance_test_failed",
		Help:      "Number of failed notebooks per run",
	}, []string{
		"run_id",
	})

	acceptanceTestDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "acceptance_test_duration",
		Help:      "Duration of notebook acceptance runs",
	}, []string{
		"run_id",
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

func RecordEnvBuild() {
	envBuildsTotal.Inc()
}

func RecordCloneError() {
	cloneErrorsTotal.Inc()
}

func RecordNotebook(runID string, name string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordNotebook - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "notebooks_total",
			"run_id", runID,
			"notebook", name,
			"result", result)
	}
	notebooksTotal.WithLabelValues(runID, name, string(result)).Inc()
}

func RecordAcceptance(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	acceptanceResults.WithLabelValues(runID, result).Set(1)
	acceptanceTestTotal.WithLabelValues(runID).Add(float64(total))
	acceptanceTestPassed.WithLabelValues(runID).Add(float64(passed))
	acceptanceTestFailed.WithLabelValues(runID).Add(float64(failed))
	acceptanceTestDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
