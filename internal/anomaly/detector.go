package anomaly

import (
	"math"
	"sort"
	"time"

	"vigil/internal/metrics/models"
	"vigil/pkg/bus"
)

// Result is the transient outcome of one anomaly check. Produced fresh on
// every evaluation and never persisted.
type Result struct {
	MonitorID   string
	Severity    bus.Severity
	Reason      string
	SampleCount int
	Latency     bus.ScoreDetail
	ErrorRate   bus.ScoreDetail
}

// Evaluate computes latency and error-rate z-scores over the given window
// samples. Deterministic: the same sample set always yields the same result.
func Evaluate(monitorID string, samples []models.Metric) Result {
	if len(samples) == 0 {
		return Result{
			MonitorID: monitorID,
			Severity:  bus.SeverityNormal,
			Reason:    "no_metrics",
		}
	}

	latency := latencyScore(samples)
	errorRate := errorRateScore(samples)

	severity := severityFor(latency.ZScore)
	if s := severityFor(errorRate.ZScore); s.MoreSevere(severity) {
		severity = s
	}

	return Result{
		MonitorID:   monitorID,
		Severity:    severity,
		SampleCount: len(samples),
		Latency:     latency,
		ErrorRate:   errorRate,
	}
}

// latencyScore tests the most recent sample's latency against the window.
func latencyScore(samples []models.Metric) bus.ScoreDetail {
	values := make([]float64, len(samples))
	for i, m := range samples {
		values[i] = float64(m.LatencyMS)
	}

	m := mean(values)
	sd := popStdDev(values, m)
	value := float64(samples[len(samples)-1].LatencyMS)

	return bus.ScoreDetail{
		Value:  value,
		Mean:   m,
		StdDev: sd,
		ZScore: zScore(value, m, sd),
	}
}

// errorRateScore buckets samples into one-minute intervals and tests the
// latest bucket's failure fraction against the sequence of bucket fractions.
func errorRateScore(samples []models.Metric) bus.ScoreDetail {
	type bucket struct {
		failures int
		total    int
	}
	buckets := make(map[int64]*bucket)
	for _, m := range samples {
		key := m.Timestamp.Truncate(time.Minute).Unix()
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		if !m.Success {
			b.failures++
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	fractions := make([]float64, len(keys))
	for i, k := range keys {
		b := buckets[k]
		fractions[i] = float64(b.failures) / float64(b.total)
	}

	m := mean(fractions)
	sd := popStdDev(fractions, m)
	value := fractions[len(fractions)-1]

	return bus.ScoreDetail{
		Value:  value,
		Mean:   m,
		StdDev: sd,
		ZScore: zScore(value, m, sd),
	}
}

func severityFor(z float64) bus.Severity {
	switch abs := math.Abs(z); {
	case abs > 3:
		return bus.SeverityCritical
	case abs > 2:
		return bus.SeverityWarning
	default:
		return bus.SeverityNormal
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// popStdDev is the population standard deviation (divide by n, not n-1).
func popStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		d := v - mean
		total += d * d
	}
	return math.Sqrt(total / float64(len(values)))
}

func zScore(value, mean, stdDev float64) float64 {
	if stdDev <= 0 {
		return 0
	}
	return (value - mean) / stdDev
}
