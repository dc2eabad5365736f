package anomaly

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	metricsServices "vigil/internal/metrics/services"
	"vigil/pkg/bus"
	"vigil/pkg/database"
	"vigil/pkg/module"

	"github.com/go-chi/chi/v5"
)

// Module runs anomaly checks requested over the event bus
type Module struct {
	*module.BaseModule
	bus     *bus.Bus
	metrics *metricsServices.Service
}

// New creates a new anomaly module
func New(mongodb *database.MongoDB, redis *database.Redis, eventBus *bus.Bus, metrics *metricsServices.Service) *Module {
	return &Module{
		BaseModule: module.NewBaseModule("anomaly", mongodb, redis),
		bus:        eventBus,
		metrics:    metrics,
	}
}

// Routes registers Chi routes for this module
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// StartBackgroundTasks subscribes the detector to check requests
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	slog.Info("Starting anomaly detector", "module", m.Name())

	sub := m.bus.Subscribe(ctx, bus.TopicAnomalyCheck, func(ctx context.Context, payload []byte) {
		var request bus.AnomalyCheckRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			slog.Error("Failed to decode anomaly check request", "error", err)
			return
		}
		m.check(ctx, request.MonitorID)
	})
	defer sub.Close()

	select {
	case <-ctx.Done():
	case <-m.StopChannel():
	}
	slog.Info("Anomaly detector stopped", "module", m.Name())
}

// check evaluates one monitor's trailing window and requests an alert when
// the result is anything other than NORMAL. No deduplication here: anomaly
// alerts are advisory and may recur while the anomaly persists.
func (m *Module) check(ctx context.Context, monitorID string) {
	samples, err := m.metrics.WindowMetrics(ctx, monitorID, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to load metric window for anomaly check",
			"monitor_id", monitorID,
			"error", err)
		return
	}

	result := Evaluate(monitorID, samples)

	slog.Debug("Anomaly check completed",
		"monitor_id", monitorID,
		"severity", string(result.Severity),
		"samples", result.SampleCount,
		"latency_z", result.Latency.ZScore,
		"error_rate_z", result.ErrorRate.ZScore)

	if result.Severity == bus.SeverityNormal {
		return
	}

	latency := result.Latency
	errorRate := result.ErrorRate
	request := bus.AlertRequest{
		MonitorID: monitorID,
		Severity:  result.Severity,
		Diagnostic: &bus.Diagnostic{
			Reason:      "anomaly",
			SampleCount: result.SampleCount,
			Latency:     &latency,
			ErrorRate:   &errorRate,
		},
	}

	if err := m.bus.Publish(ctx, bus.TopicAlertRequests, request); err != nil {
		slog.Error("Failed to publish anomaly alert request",
			"monitor_id", monitorID,
			"error", err)
	}
}

// Ensure Module implements the module.Module interface
var _ module.Module = (*Module)(nil)
