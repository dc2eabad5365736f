package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vigil/internal/alerts"
	metricsModels "vigil/internal/metrics/models"
	monitorsModels "vigil/internal/monitors/models"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MetricRecorder is the append-only metric store the executor writes to.
type MetricRecorder interface {
	Record(ctx context.Context, metric *metricsModels.Metric) error
}

// ProbeResult classifies one HTTP health-check attempt. Success requires a
// response to have actually arrived with a status below 400; a transport
// error or timeout yields status code 0 and success=false.
type ProbeResult struct {
	LatencyMS  int64
	StatusCode int
	Success    bool
}

// Executor performs the HTTP health check for one monitor and drives the
// downstream pipeline: metric write, failure counter, state events, anomaly
// checks and the live stream feed.
type Executor struct {
	registry  Registry
	recorder  MetricRecorder
	state     alerts.MonitorStateStore
	publisher Publisher
	client    *http.Client
}

// NewExecutor creates a probe executor. The HTTP client carries no global
// timeout; each probe is bounded by the monitor's configured timeout.
func NewExecutor(registry Registry, recorder MetricRecorder, state alerts.MonitorStateStore, publisher Publisher) *Executor {
	return &Executor{
		registry:  registry,
		recorder:  recorder,
		state:     state,
		publisher: publisher,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// ExecuteProbe probes one monitor end to end. Store failures are logged and
// the probe is considered complete regardless; the next tick probes again.
func (e *Executor) ExecuteProbe(ctx context.Context, monitorID string) {
	monitor, err := e.registry.Get(ctx, monitorID)
	if err != nil {
		if errors.Is(err, monitorsServices.ErrNotFound) {
			// A monitor can be removed out from under an in-flight probe.
			slog.Warn("Probe for unknown monitor dropped", "monitor_id", monitorID)
			return
		}
		slog.Error("Failed to load monitor for probe", "monitor_id", monitorID, "error", err)
		return
	}

	result := e.probe(ctx, monitor)

	metric := metricsModels.NewMetric(monitor.ID, time.Now().UTC(), result.LatencyMS, result.StatusCode, result.Success)
	if err := e.recorder.Record(ctx, metric); err != nil {
		slog.Error("Failed to record metric",
			"monitor_id", monitor.ID,
			"error", err)
	}

	// Best-effort push to live status streams; never rolls back the write.
	event := bus.MetricEvent{
		MonitorID:  metric.MonitorID,
		Timestamp:  metric.Timestamp,
		LatencyMS:  metric.LatencyMS,
		StatusCode: metric.StatusCode,
		Success:    metric.Success,
	}
	if err := e.publisher.Publish(ctx, bus.StreamTopic(monitor.ID), event); err != nil {
		slog.Warn("Failed to publish metric to stream subscribers",
			"monitor_id", monitor.ID,
			"error", err)
	}

	if result.Success {
		e.handleSuccess(ctx, monitor)
	} else {
		e.handleFailure(ctx, monitor)
	}
}

// probe issues the HTTP GET bounded by the monitor's timeout. Latency is
// wall-clock time from request start to response or error.
func (e *Executor) probe(ctx context.Context, monitor *monitorsModels.MonitorConfig) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, monitor.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, monitor.URL, nil)
	if err != nil {
		slog.Error("Failed to build probe request", "monitor_id", monitor.ID, "error", err)
		return ProbeResult{}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		slog.Debug("Probe transport failure",
			"monitor_id", monitor.ID,
			"url", monitor.URL,
			"latency_ms", latency,
			"error", err)
		return ProbeResult{LatencyMS: latency, StatusCode: 0, Success: false}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return ProbeResult{
		LatencyMS:  latency,
		StatusCode: resp.StatusCode,
		Success:    resp.StatusCode < 400,
	}
}

func (e *Executor) handleSuccess(ctx context.Context, monitor *monitorsModels.MonitorConfig) {
	if err := e.state.ResetFailures(ctx, monitor.ID); err != nil {
		slog.Error("Failed to reset failure counter", "monitor_id", monitor.ID, "error", err)
	}

	state, err := e.state.GetState(ctx, monitor.ID)
	if err != nil {
		slog.Error("Failed to read alert state", "monitor_id", monitor.ID, "error", err)
	} else if state == alerts.StateDown || state == alerts.StateAlerted {
		recovery := bus.MonitorEvent{
			MonitorID: monitor.ID,
			Type:      bus.MonitorEventRecovery,
			At:        time.Now().UTC(),
		}
		if err := e.publisher.Publish(ctx, bus.TopicMonitorEvents, recovery); err != nil {
			slog.Error("Failed to publish recovery event", "monitor_id", monitor.ID, "error", err)
		}
	}

	// Anomaly checks run only on successful probes; the threshold mechanism
	// covers the failure path.
	check := bus.AnomalyCheckRequest{MonitorID: monitor.ID}
	if err := e.publisher.Publish(ctx, bus.TopicAnomalyCheck, check); err != nil {
		slog.Error("Failed to publish anomaly check request", "monitor_id", monitor.ID, "error", err)
	}
}

func (e *Executor) handleFailure(ctx context.Context, monitor *monitorsModels.MonitorConfig) {
	count, err := e.state.IncrFailures(ctx, monitor.ID)
	if err != nil {
		slog.Error("Failed to increment failure counter", "monitor_id", monitor.ID, "error", err)
		return
	}

	slog.Info("Probe failed",
		"monitor_id", monitor.ID,
		"url", monitor.URL,
		"consecutive_failures", count,
		"threshold", monitor.Threshold())

	if count < int64(monitor.Threshold()) {
		return
	}

	state, err := e.state.GetState(ctx, monitor.ID)
	if err != nil {
		slog.Error("Failed to read alert state", "monitor_id", monitor.ID, "error", err)
		return
	}
	if state == alerts.StateDown || state == alerts.StateAlerted {
		// Outage already signalled; nothing new to emit.
		return
	}

	if err := e.state.SetState(ctx, monitor.ID, alerts.StateDown); err != nil {
		slog.Error("Failed to mark monitor down", "monitor_id", monitor.ID, "error", err)
		return
	}

	down := bus.MonitorEvent{
		MonitorID: monitor.ID,
		Type:      bus.MonitorEventDown,
		At:        time.Now().UTC(),
	}
	if err := e.publisher.Publish(ctx, bus.TopicMonitorEvents, down); err != nil {
		slog.Error("Failed to publish down event", "monitor_id", monitor.ID, "error", err)
	}
}
