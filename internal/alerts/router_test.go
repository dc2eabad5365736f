package alerts

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	metricsModels "vigil/internal/metrics/models"
	monitorsModels "vigil/internal/monitors/models"
	"vigil/pkg/bus"
	"vigil/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitor() *monitorsModels.MonitorConfig {
	return &monitorsModels.MonitorConfig{
		ID:   "mon-1",
		URL:  "https://example.com/health",
		Name: "Example",
	}
}

func metricAt(at time.Time, latencyMS int64, success bool) metricsModels.Metric {
	return metricsModels.Metric{
		MonitorID: "mon-1",
		Timestamp: at,
		LatencyMS: latencyMS,
		Success:   success,
	}
}

func TestBuildAlertContext_FailureDuration(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	request := bus.AlertRequest{
		MonitorID: "mon-1",
		Severity:  bus.SeverityCritical,
		Diagnostic: &bus.Diagnostic{
			Reason: "threshold_breach",
		},
	}

	tests := []struct {
		name        string
		samples     []metricsModels.Metric
		wantSeconds *float64
	}{
		{
			name:        "empty window yields no duration",
			samples:     nil,
			wantSeconds: nil,
		},
		{
			name: "measured from last success",
			samples: []metricsModels.Metric{
				metricAt(now.Add(-10*time.Minute), 100, true),
				metricAt(now.Add(-5*time.Minute), 100, true),
				metricAt(now.Add(-3*time.Minute), 0, false),
				metricAt(now.Add(-1*time.Minute), 0, false),
			},
			wantSeconds: floatPtr(5 * 60),
		},
		{
			name: "no success falls back to earliest sample",
			samples: []metricsModels.Metric{
				metricAt(now.Add(-8*time.Minute), 0, false),
				metricAt(now.Add(-4*time.Minute), 0, false),
			},
			wantSeconds: floatPtr(8 * 60),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := BuildAlertContext(testMonitor(), tt.samples, request, now)

			assert.Equal(t, "mon-1", payload.MonitorID)
			assert.Equal(t, bus.SeverityCritical, payload.Severity)
			if tt.wantSeconds == nil {
				assert.Nil(t, payload.FailureDurationSeconds)
				return
			}
			require.NotNil(t, payload.FailureDurationSeconds)
			assert.InDelta(t, *tt.wantSeconds, *payload.FailureDurationSeconds, 1e-9)
		})
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestBuildAlertContext_AverageLatency(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	samples := []metricsModels.Metric{
		metricAt(now.Add(-3*time.Minute), 100, true),
		metricAt(now.Add(-2*time.Minute), 200, true),
		metricAt(now.Add(-1*time.Minute), 300, true),
	}

	payload := BuildAlertContext(testMonitor(), samples, bus.AlertRequest{Severity: bus.SeverityWarning}, now)

	if math.Abs(payload.AvgLatencyMS-200) > 1e-9 {
		t.Errorf("AvgLatencyMS = %v, want 200", payload.AvgLatencyMS)
	}
}

func TestRouter_SendWebhook(t *testing.T) {
	var received AlertContext
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor := testMonitor()
	monitor.AlertWebhookURL = server.URL

	router := &Router{client: server.Client()}
	payload := AlertContext{
		MonitorID: "mon-1",
		URL:       monitor.URL,
		Severity:  bus.SeverityCritical,
		Timestamp: time.Now().UTC(),
	}

	router.sendWebhook(context.Background(), monitor, config.AlertDefaults{}, payload)

	require.Equal(t, 1, calls)
	assert.Equal(t, "mon-1", received.MonitorID)
	assert.Equal(t, bus.SeverityCritical, received.Severity)
}

func TestRouter_SendWebhook_FallsBackToDefaultURL(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	router := &Router{client: server.Client()}
	defaults := config.AlertDefaults{WebhookURL: server.URL}

	router.sendWebhook(context.Background(), testMonitor(), defaults, AlertContext{MonitorID: "mon-1"})

	assert.Equal(t, 1, calls)
}

func TestRouter_SendWebhook_Unconfigured(t *testing.T) {
	// No monitor override and no default: the channel is skipped silently.
	router := &Router{client: &http.Client{}}
	router.sendWebhook(context.Background(), testMonitor(), config.AlertDefaults{}, AlertContext{MonitorID: "mon-1"})
}

func TestRouter_SendEmail(t *testing.T) {
	var received emailRequest
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	router := &Router{client: server.Client()}
	defaults := config.AlertDefaults{
		EmailAPIURL: server.URL,
		EmailAPIKey: "secret",
		EmailTo:     "ops@example.com",
		EmailFrom:   "vigil@example.com",
	}

	payload := AlertContext{MonitorID: "mon-1", Severity: bus.SeverityCritical}
	router.sendEmail(context.Background(), testMonitor(), defaults, payload)

	require.Equal(t, 1, calls)
	assert.Equal(t, "ops@example.com", received.To)
	assert.Equal(t, "vigil@example.com", received.From)
	assert.Equal(t, "[vigil] Example is CRITICAL", received.Subject)
}

func TestRouter_SendEmail_RecoverySubject(t *testing.T) {
	var received emailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	router := &Router{client: server.Client()}
	defaults := config.AlertDefaults{
		EmailAPIURL: server.URL,
		EmailAPIKey: "secret",
		EmailTo:     "ops@example.com",
		EmailFrom:   "vigil@example.com",
	}

	payload := AlertContext{
		MonitorID:  "mon-1",
		Severity:   bus.SeverityNormal,
		Diagnostic: &bus.Diagnostic{Reason: "recovered", Recovered: true},
	}
	router.sendEmail(context.Background(), testMonitor(), defaults, payload)

	assert.Equal(t, "[vigil] Example recovered", received.Subject)
}

func TestRouter_SendEmail_MonitorOverrides(t *testing.T) {
	var received emailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor := testMonitor()
	monitor.AlertTo = "oncall@example.com"
	monitor.EmailFrom = "alerts@example.com"

	router := &Router{client: server.Client()}
	defaults := config.AlertDefaults{
		EmailAPIURL: server.URL,
		EmailAPIKey: "secret",
		EmailTo:     "ops@example.com",
		EmailFrom:   "vigil@example.com",
	}

	router.sendEmail(context.Background(), monitor, defaults, AlertContext{MonitorID: "mon-1"})

	assert.Equal(t, "oncall@example.com", received.To)
	assert.Equal(t, "alerts@example.com", received.From)
}

func TestRouter_SendEmail_MissingCredentials(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	router := &Router{client: server.Client()}
	defaults := config.AlertDefaults{EmailAPIURL: server.URL} // no key, no addresses

	router.sendEmail(context.Background(), testMonitor(), defaults, AlertContext{MonitorID: "mon-1"})

	assert.Equal(t, 0, calls)
}
