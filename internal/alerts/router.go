package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	metricsModels "vigil/internal/metrics/models"
	metricsServices "vigil/internal/metrics/services"
	monitorsModels "vigil/internal/monitors/models"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"
	"vigil/pkg/config"
)

// AlertContext is the payload delivered on every outbound channel.
type AlertContext struct {
	MonitorID              string          `json:"monitor_id"`
	Name                   string          `json:"name,omitempty"`
	URL                    string          `json:"url"`
	Severity               bus.Severity    `json:"severity"`
	Timestamp              time.Time       `json:"timestamp"`
	FailureDurationSeconds *float64        `json:"failure_duration_seconds"`
	AvgLatencyMS           float64         `json:"avg_latency_ms"`
	Diagnostic             *bus.Diagnostic `json:"diagnostic,omitempty"`
}

// Router maps alert severity to outbound channels. Every dispatch is
// best-effort: delivery failures are logged per channel and never propagate.
type Router struct {
	monitors *monitorsServices.Service
	metrics  *metricsServices.Service
	client   *http.Client
}

// NewRouter creates an alert router.
func NewRouter(monitors *monitorsServices.Service, metrics *metricsServices.Service) *Router {
	return &Router{
		monitors: monitors,
		metrics:  metrics,
		client: &http.Client{
			Timeout: config.GetDurationEnv("ALERT_HTTP_TIMEOUT", 10*time.Second),
		},
	}
}

// Route dispatches one alert request to the channels its severity calls for.
func (r *Router) Route(ctx context.Context, request bus.AlertRequest) {
	monitor, err := r.monitors.Get(ctx, request.MonitorID)
	if err != nil {
		if errors.Is(err, monitorsServices.ErrNotFound) {
			slog.Warn("Alert for unknown monitor dropped", "monitor_id", request.MonitorID)
			return
		}
		slog.Error("Failed to load monitor for alert",
			"monitor_id", request.MonitorID,
			"error", err)
		return
	}

	samples, err := r.metrics.WindowMetrics(ctx, request.MonitorID, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to load metric window for alert",
			"monitor_id", request.MonitorID,
			"error", err)
		samples = nil
	}

	payload := BuildAlertContext(monitor, samples, request, time.Now().UTC())
	defaults := config.GetAlertDefaults()
	recovered := request.Diagnostic != nil && request.Diagnostic.Recovered

	if request.Severity == bus.SeverityCritical || (request.Severity == bus.SeverityNormal && recovered) {
		r.sendEmail(ctx, monitor, defaults, payload)
	}

	if request.Severity == bus.SeverityCritical || request.Severity == bus.SeverityWarning ||
		(request.Severity == bus.SeverityNormal && recovered) {
		r.sendWebhook(ctx, monitor, defaults, payload)
	}
}

// BuildAlertContext computes the alert payload. Failure duration is measured
// from the last successful sample in the window, from the earliest sample if
// nothing in the window succeeded, and is nil when the window is empty.
func BuildAlertContext(monitor *monitorsModels.MonitorConfig, samples []metricsModels.Metric, request bus.AlertRequest, now time.Time) AlertContext {
	payload := AlertContext{
		MonitorID:    monitor.ID,
		Name:         monitor.Name,
		URL:          monitor.URL,
		Severity:     request.Severity,
		Timestamp:    now,
		AvgLatencyMS: metricsServices.AverageLatency(samples),
		Diagnostic:   request.Diagnostic,
	}

	if since, ok := metricsServices.LastSuccessTime(samples); ok {
		seconds := now.Sub(since).Seconds()
		payload.FailureDurationSeconds = &seconds
	} else if earliest, ok := metricsServices.Earliest(samples); ok {
		seconds := now.Sub(earliest.Timestamp).Seconds()
		payload.FailureDurationSeconds = &seconds
	}

	return payload
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (r *Router) sendEmail(ctx context.Context, monitor *monitorsModels.MonitorConfig, defaults config.AlertDefaults, payload AlertContext) {
	to := monitor.AlertTo
	if to == "" {
		to = defaults.EmailTo
	}
	from := monitor.EmailFrom
	if from == "" {
		from = defaults.EmailFrom
	}

	if defaults.EmailAPIURL == "" || defaults.EmailAPIKey == "" || to == "" || from == "" {
		slog.Warn("Email channel not configured, skipping",
			"monitor_id", monitor.ID,
			"severity", string(payload.Severity))
		return
	}

	subject := fmt.Sprintf("[vigil] %s is CRITICAL", monitor.DisplayName())
	if payload.Diagnostic != nil && payload.Diagnostic.Recovered {
		subject = fmt.Sprintf("[vigil] %s recovered", monitor.DisplayName())
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal alert payload", "monitor_id", monitor.ID, "error", err)
		return
	}

	body, err := json.Marshal(emailRequest{
		From:    from,
		To:      to,
		Subject: subject,
		Text:    string(text),
	})
	if err != nil {
		slog.Error("Failed to marshal email request", "monitor_id", monitor.ID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, defaults.EmailAPIURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build email request", "monitor_id", monitor.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+defaults.EmailAPIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Error("Email delivery failed",
			"monitor_id", monitor.ID,
			"error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("Email API rejected alert",
			"monitor_id", monitor.ID,
			"status_code", resp.StatusCode)
		return
	}

	slog.Info("Alert email sent",
		"monitor_id", monitor.ID,
		"to", to,
		"severity", string(payload.Severity))
}

func (r *Router) sendWebhook(ctx context.Context, monitor *monitorsModels.MonitorConfig, defaults config.AlertDefaults, payload AlertContext) {
	url := monitor.AlertWebhookURL
	if url == "" {
		url = defaults.WebhookURL
	}
	if url == "" {
		slog.Warn("Webhook channel not configured, skipping",
			"monitor_id", monitor.ID,
			"severity", string(payload.Severity))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal webhook payload", "monitor_id", monitor.ID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build webhook request", "monitor_id", monitor.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Error("Webhook delivery failed",
			"monitor_id", monitor.ID,
			"error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("Webhook rejected alert",
			"monitor_id", monitor.ID,
			"status_code", resp.StatusCode)
		return
	}

	slog.Info("Alert webhook sent",
		"monitor_id", monitor.ID,
		"severity", string(payload.Severity))
}
