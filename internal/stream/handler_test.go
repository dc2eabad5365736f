package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	metricsModels "vigil/internal/metrics/models"
	monitorsModels "vigil/internal/monitors/models"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"

	"github.com/go-chi/chi/v5"
)

func TestPlaceholderEvent(t *testing.T) {
	data, err := json.Marshal(PlaceholderEvent())
	if err != nil {
		t.Fatalf("marshal placeholder: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal placeholder: %v", err)
	}

	// Metric fields are present but null so clients get a stable shape.
	for _, field := range []string{"timestamp", "latency_ms", "status_code", "success", "uptime_percent"} {
		value, ok := decoded[field]
		if !ok {
			t.Errorf("placeholder is missing field %q", field)
			continue
		}
		if value != nil {
			t.Errorf("placeholder field %q = %v, want null", field, value)
		}
	}
	if _, ok := decoded["empty"]; ok {
		t.Error("placeholder should omit the empty marker")
	}
}

func TestSnapshotEvent_EmptyWindow(t *testing.T) {
	event := SnapshotEvent(nil)

	if !event.Empty {
		t.Error("empty window must set the empty marker")
	}
	if event.Timestamp != nil || event.UptimePercent != nil {
		t.Error("empty snapshot must not carry metric fields")
	}
}

func TestSnapshotEvent_LatestSampleAndUptime(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	samples := []metricsModels.Metric{
		{MonitorID: "mon-1", Timestamp: now.Add(-2 * time.Minute), LatencyMS: 120, StatusCode: 200, Success: true},
		{MonitorID: "mon-1", Timestamp: now.Add(-1 * time.Minute), LatencyMS: 150, StatusCode: 200, Success: true},
		{MonitorID: "mon-1", Timestamp: now, LatencyMS: 80, StatusCode: 503, Success: false},
	}

	event := SnapshotEvent(samples)

	if event.Empty {
		t.Fatal("non-empty window must not set the empty marker")
	}
	if event.Timestamp == nil || !event.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want latest sample time %v", event.Timestamp, now)
	}
	if event.LatencyMS == nil || *event.LatencyMS != 80 {
		t.Errorf("LatencyMS = %v, want 80", event.LatencyMS)
	}
	if event.StatusCode == nil || *event.StatusCode != 503 {
		t.Errorf("StatusCode = %v, want 503", event.StatusCode)
	}
	if event.Success == nil || *event.Success {
		t.Errorf("Success = %v, want false", event.Success)
	}
	wantUptime := 2.0 / 3.0 * 100
	if event.UptimePercent == nil || *event.UptimePercent != wantUptime {
		t.Errorf("UptimePercent = %v, want %v", event.UptimePercent, wantUptime)
	}
}

func TestFormatEvent(t *testing.T) {
	frame, err := FormatEvent("status", map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("FormatEvent error: %v", err)
	}

	text := string(frame)
	if !strings.HasPrefix(text, "event: status\ndata: ") {
		t.Errorf("frame = %q, want event name then data line", text)
	}
	if !strings.HasSuffix(text, "\n\n") {
		t.Errorf("frame = %q, want blank-line terminator", text)
	}
	if !strings.Contains(text, `{"hello":"world"}`) {
		t.Errorf("frame = %q, want JSON payload", text)
	}
}

func TestStreamConnTeardownIsIdempotent(t *testing.T) {
	conn := &streamConn{
		keepAlive: time.NewTicker(time.Second),
		poll:      time.NewTicker(time.Second),
	}
	conn.state.Store(stateStreaming)

	conn.teardown()
	conn.teardown()
	conn.teardown()

	if conn.state.Load() != stateClosed {
		t.Errorf("state = %d, want closed", conn.state.Load())
	}
}

type fakeRegistry struct {
	monitors map[string]*monitorsModels.MonitorConfig
}

func (f *fakeRegistry) Get(ctx context.Context, id string) (*monitorsModels.MonitorConfig, error) {
	if m, ok := f.monitors[id]; ok {
		return m, nil
	}
	return nil, monitorsServices.ErrNotFound
}

type fakeMetricSource struct {
	mu      sync.Mutex
	samples []metricsModels.Metric
}

func (f *fakeMetricSource) WindowMetrics(ctx context.Context, monitorID string, now time.Time) ([]metricsModels.Metric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples, nil
}

func (f *fakeMetricSource) setSamples(samples []metricsModels.Metric) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = samples
}

type fakeSubscriber struct {
	mu      sync.Mutex
	topic   string
	handler func(ctx context.Context, payload []byte)
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) *bus.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.handler = handler
	return &bus.Subscription{}
}

func (f *fakeSubscriber) nudge(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		handler := f.handler
		f.mu.Unlock()
		if handler != nil {
			handler(context.Background(), []byte(`{}`))
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stream never subscribed to its topic")
}

func newTestHandler(registry Registry, metrics MetricSource, subscriber Subscriber) *Handler {
	return &Handler{
		monitors:          registry,
		metrics:           metrics,
		bus:               subscriber,
		keepAliveInterval: time.Minute,
		pollInterval:      time.Minute,
	}
}

func streamRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/monitors/{monitor_id}/stream", h.ServeStream)
	return r
}

// readFrame consumes one SSE frame up to its blank-line terminator.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream frame: %v", err)
		}
		if line == "\n" {
			return b.String()
		}
		b.WriteString(line)
	}
}

func TestServeStream_UnknownMonitor(t *testing.T) {
	h := newTestHandler(&fakeRegistry{}, &fakeMetricSource{}, &fakeSubscriber{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/monitors/ghost/stream", nil)
	streamRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// noFlushWriter hides the recorder's Flush so the handler sees a response
// channel without push support.
type noFlushWriter struct {
	http.ResponseWriter
}

func TestServeStream_WithoutFlusher(t *testing.T) {
	registry := &fakeRegistry{monitors: map[string]*monitorsModels.MonitorConfig{
		"mon-1": {ID: "mon-1", URL: "https://example.com"},
	}}
	h := newTestHandler(registry, &fakeMetricSource{}, &fakeSubscriber{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/monitors/mon-1/stream", nil)
	streamRouter(h).ServeHTTP(&noFlushWriter{w}, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 when streaming is unsupported", w.Code)
	}
}

func TestServeStream_PlaceholderThenEmptyThenPopulated(t *testing.T) {
	registry := &fakeRegistry{monitors: map[string]*monitorsModels.MonitorConfig{
		"mon-1": {ID: "mon-1", URL: "https://example.com"},
	}}
	metrics := &fakeMetricSource{}
	subscriber := &fakeSubscriber{}
	h := newTestHandler(registry, metrics, subscriber)

	server := httptest.NewServer(streamRouter(h))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/monitors/mon-1/stream", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	reader := bufio.NewReader(resp.Body)

	// First frame is the placeholder: named event, all-null metric fields.
	placeholder := readFrame(t, reader)
	if !strings.HasPrefix(placeholder, "event: status\n") {
		t.Errorf("placeholder frame = %q, want a named status event", placeholder)
	}
	if !strings.Contains(placeholder, `"timestamp":null`) {
		t.Errorf("placeholder frame = %q, want null metric fields", placeholder)
	}
	if strings.Contains(placeholder, `"empty"`) {
		t.Errorf("placeholder frame = %q, must not carry the empty marker", placeholder)
	}

	// With no metrics recorded yet, a push yields the empty marker.
	subscriber.nudge(t)
	empty := readFrame(t, reader)
	if !strings.Contains(empty, `"empty":true`) {
		t.Errorf("frame = %q, want empty marker for a bare window", empty)
	}

	// Once a metric lands, the next push carries the sample and uptime.
	now := time.Now().UTC()
	metrics.setSamples([]metricsModels.Metric{
		{MonitorID: "mon-1", Timestamp: now, LatencyMS: 42, StatusCode: 200, Success: true},
	})
	subscriber.nudge(t)
	populated := readFrame(t, reader)
	if !strings.Contains(populated, `"latency_ms":42`) {
		t.Errorf("frame = %q, want the recorded latency", populated)
	}
	if !strings.Contains(populated, `"uptime_percent":100`) {
		t.Errorf("frame = %q, want the window uptime", populated)
	}
}

func TestStreamConnTeardownWithoutTickers(t *testing.T) {
	// Teardown can race connection setup; nil tickers must not panic.
	conn := &streamConn{}
	conn.teardown()

	if conn.state.Load() != stateClosed {
		t.Errorf("state = %d, want closed", conn.state.Load())
	}
}
