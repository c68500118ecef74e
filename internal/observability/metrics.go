package observability

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	submissionsTotal      *prometheus.CounterVec
	submissionScore       prometheus.Histogram
	checklistItemsTotal   *prometheus.CounterVec
	extractionSeconds     prometheus.Histogram
	resultCacheLookups    *prometheus.CounterVec
	lastRunTimestampGauge prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgrader_submissions_total",
			Help: "Total number of submissions processed, by outcome.",
		}, []string{"outcome"})

		submissionScore = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webgrader_submission_score",
			Help:    "Distribution of raw submission scores.",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		})

		checklistItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgrader_checklist_items_total",
			Help: "Checklist items evaluated, by item and result.",
		}, []string{"item", "passed"})

		extractionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webgrader_extraction_seconds",
			Help:    "Time spent unpacking submission archives.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		})

		resultCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgrader_result_cache_lookups_total",
			Help: "Result cache lookups, by result.",
		}, []string{"result"})

		lastRunTimestampGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webgrader_last_run_timestamp_seconds",
			Help: "Unix time at which the last grading run finished.",
		})

		prometheus.MustRegister(submissionsTotal, submissionScore, checklistItemsTotal, extractionSeconds, resultCacheLookups, lastRunTimestampGauge)
	})
}

// Submissions exposes the counter of processed submissions.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// SubmissionScore exposes the raw score histogram.
func SubmissionScore() prometheus.Histogram {
	RegisterMetrics()
	return submissionScore
}

// ChecklistItems exposes the counter of evaluated checklist items.
func ChecklistItems() *prometheus.CounterVec {
	RegisterMetrics()
	return checklistItemsTotal
}

// ExtractionLatency exposes the archive extraction histogram.
func ExtractionLatency() prometheus.Histogram {
	RegisterMetrics()
	return extractionSeconds
}

// ResultCacheLookups exposes the counter of result cache lookups.
func ResultCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return resultCacheLookups
}

// LastRunTimestamp exposes the gauge set when a run completes.
func LastRunTimestamp() prometheus.Gauge {
	RegisterMetrics()
	return lastRunTimestampGauge
}

// WriteTextfile dumps every registered metric to path in the text exposition
// format, for pickup by a node_exporter textfile collector.
func WriteTextfile(path string) error {
	RegisterMetrics()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
