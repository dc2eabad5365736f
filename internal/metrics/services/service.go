package services

import (
	"context"
	"time"

	"vigil/internal/metrics/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// Window is the trailing interval every statistics consumer looks at.
const Window = 60 * time.Minute

// Service is the metric store adapter used by the probe pipeline and the
// status streamer. Window filtering is done here, not in the store.
type Service struct {
	repository *Repository
}

// NewService creates a new metrics service
func NewService(db *mongo.Database) *Service {
	return &Service{
		repository: NewRepository(db),
	}
}

// InitializeModule sets up indexes
func (s *Service) InitializeModule(ctx context.Context) error {
	return s.repository.CreateIndexes(ctx)
}

// Record appends one probe result to the store.
func (s *Service) Record(ctx context.Context, metric *models.Metric) error {
	return s.repository.Append(ctx, metric)
}

// WindowMetrics returns the monitor's metrics within the trailing window
// ending at now, ordered by timestamp ascending. Entries without a usable
// timestamp are discarded.
func (s *Service) WindowMetrics(ctx context.Context, monitorID string, now time.Time) ([]models.Metric, error) {
	metrics, err := s.repository.QuerySince(ctx, monitorID, now.Add(-Window))
	if err != nil {
		return nil, err
	}
	return FilterWindow(metrics, now), nil
}

// FilterWindow keeps samples with a valid timestamp inside (now-Window, now].
func FilterWindow(samples []models.Metric, now time.Time) []models.Metric {
	cutoff := now.Add(-Window)
	filtered := make([]models.Metric, 0, len(samples))
	for _, m := range samples {
		if m.Timestamp.IsZero() {
			continue
		}
		if !m.Timestamp.After(cutoff) || m.Timestamp.After(now) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

// UptimePercent is the window's success fraction scaled to 0-100.
func UptimePercent(samples []models.Metric) float64 {
	if len(samples) == 0 {
		return 0
	}
	successes := 0
	for _, m := range samples {
		if m.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(samples)) * 100
}

// AverageLatency is the mean latency in milliseconds across the samples.
func AverageLatency(samples []models.Metric) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total int64
	for _, m := range samples {
		total += m.LatencyMS
	}
	return float64(total) / float64(len(samples))
}

// LastSuccessTime returns the timestamp of the most recent successful sample.
func LastSuccessTime(samples []models.Metric) (time.Time, bool) {
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Success {
			return samples[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

// Latest returns the most recent sample.
func Latest(samples []models.Metric) (models.Metric, bool) {
	if len(samples) == 0 {
		return models.Metric{}, false
	}
	return samples[len(samples)-1], true
}

// Earliest returns the oldest sample.
func Earliest(samples []models.Metric) (models.Metric, bool) {
	if len(samples) == 0 {
		return models.Metric{}, false
	}
	return samples[0], true
}
