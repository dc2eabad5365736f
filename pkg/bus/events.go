package bus

import "time"

// Severity classifies how unusual a monitor's behavior is.
type Severity string

const (
	SeverityNormal   Severity = "NORMAL"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// MoreSevere reports whether s outranks other (CRITICAL > WARNING > NORMAL).
func (s Severity) MoreSevere(other Severity) bool {
	return s.rank() > other.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ProbeRequest asks the executor to probe one monitor.
type ProbeRequest struct {
	MonitorID string `json:"monitor_id"`
}

// MonitorEventType distinguishes threshold-breach from recovery signals.
type MonitorEventType string

const (
	MonitorEventDown     MonitorEventType = "down"
	MonitorEventRecovery MonitorEventType = "recovery"
)

// MonitorEvent is emitted by the probe executor when a monitor crosses its
// failure threshold or comes back up. The alert state machine decides
// whether it results in an outbound alert.
type MonitorEvent struct {
	MonitorID string           `json:"monitor_id"`
	Type      MonitorEventType `json:"type"`
	At        time.Time        `json:"at"`
}

// AnomalyCheckRequest asks the detector to evaluate a monitor's window.
type AnomalyCheckRequest struct {
	MonitorID string `json:"monitor_id"`
}

// ScoreDetail is the statistical breakdown for one anomaly dimension.
type ScoreDetail struct {
	Value  float64 `json:"value"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	ZScore float64 `json:"zscore"`
}

// Diagnostic carries the context behind an alert request. Exactly one of the
// reason variants applies; optional sections are nil when absent.
type Diagnostic struct {
	Reason              string       `json:"reason"`
	Recovered           bool         `json:"recovered,omitempty"`
	ConsecutiveFailures int64        `json:"consecutive_failures,omitempty"`
	SampleCount         int          `json:"sample_count,omitempty"`
	Latency             *ScoreDetail `json:"latency,omitempty"`
	ErrorRate           *ScoreDetail `json:"error_rate,omitempty"`
}

// AlertRequest asks the router to dispatch an outbound alert.
type AlertRequest struct {
	MonitorID  string      `json:"monitor_id"`
	Severity   Severity    `json:"severity"`
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

// MetricEvent is pushed on the per-monitor stream topic after every probe so
// connected status streams see fresh samples without waiting for a poll tick.
type MetricEvent struct {
	MonitorID  string    `json:"monitor_id"`
	Timestamp  time.Time `json:"timestamp"`
	LatencyMS  int64     `json:"latency_ms"`
	StatusCode int       `json:"status_code"`
	Success    bool      `json:"success"`
}
