package models

import (
	"time"
)

// MetricsCollection is the MongoDB collection name for probe results
const MetricsCollection = "metrics"

// Metric is one recorded probe result. Metrics are append-only: created
// exactly once per probe execution and never updated.
type Metric struct {
	ID         string    `bson:"_id" json:"-"`
	MonitorID  string    `bson:"monitor_id" json:"monitor_id"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	LatencyMS  int64     `bson:"latency_ms" json:"latency_ms"`
	StatusCode int       `bson:"status_code" json:"status_code"`
	Success    bool      `bson:"success" json:"success"`
}

// NewMetric builds a metric keyed by monitor ID plus a high-resolution
// timestamp so repeated probes never overwrite each other.
func NewMetric(monitorID string, at time.Time, latencyMS int64, statusCode int, success bool) *Metric {
	at = at.UTC()
	return &Metric{
		ID:         monitorID + ":" + at.Format(time.RFC3339Nano),
		MonitorID:  monitorID,
		Timestamp:  at,
		LatencyMS:  latencyMS,
		StatusCode: statusCode,
		Success:    success,
	}
}
