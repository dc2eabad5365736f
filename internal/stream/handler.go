package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	metricsModels "vigil/internal/metrics/models"
	metricsServices "vigil/internal/metrics/services"
	monitorsModels "vigil/internal/monitors/models"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"
	"vigil/pkg/config"
	"vigil/pkg/handlers"

	"github.com/go-chi/chi/v5"
)

// Connection lifecycle states.
const (
	stateConnecting int32 = iota
	stateStreaming
	stateClosed
)

// Tick intervals: the keep-alive comment defeats idle-timeout proxies, the
// poll tick re-derives the status snapshot from the metric store.
const (
	defaultKeepAliveInterval = 15 * time.Second
	defaultPollInterval      = 30 * time.Second
)

// Registry is the monitor lookup the stream needs before subscribing.
type Registry interface {
	Get(ctx context.Context, id string) (*monitorsModels.MonitorConfig, error)
}

// MetricSource serves the trailing-window queries behind each snapshot.
type MetricSource interface {
	WindowMetrics(ctx context.Context, monitorID string, now time.Time) ([]metricsModels.Metric, error)
}

// Subscriber is the inbound side of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) *bus.Subscription
}

// StatusEvent is the payload of every "status" event on the stream. Metric
// fields are null on the initial placeholder; Empty marks a window with no
// samples.
type StatusEvent struct {
	Empty         bool       `json:"empty,omitempty"`
	Timestamp     *time.Time `json:"timestamp"`
	LatencyMS     *int64     `json:"latency_ms"`
	StatusCode    *int       `json:"status_code"`
	Success       *bool      `json:"success"`
	UptimePercent *float64   `json:"uptime_percent"`
}

// PlaceholderEvent is the initial event sent to every new subscriber so
// clients expecting an immediate first message are satisfied.
func PlaceholderEvent() StatusEvent {
	return StatusEvent{}
}

// SnapshotEvent derives a status event from the window samples: the latest
// sample plus the window's success fraction, or an empty marker.
func SnapshotEvent(samples []metricsModels.Metric) StatusEvent {
	latest, ok := metricsServices.Latest(samples)
	if !ok {
		return StatusEvent{Empty: true}
	}

	uptime := metricsServices.UptimePercent(samples)
	ts := latest.Timestamp
	latency := latest.LatencyMS
	status := latest.StatusCode
	success := latest.Success

	return StatusEvent{
		Timestamp:     &ts,
		LatencyMS:     &latency,
		StatusCode:    &status,
		Success:       &success,
		UptimePercent: &uptime,
	}
}

// FormatEvent renders one named SSE event with a JSON payload.
func FormatEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream event: %w", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)), nil
}

// keepAliveComment is a comment-only frame, no payload.
const keepAliveComment = ": keep-alive\n\n"

// streamConn tracks one subscriber. Teardown is idempotent because both the
// write-failure path and the disconnect path reach it.
type streamConn struct {
	state     atomic.Int32
	closeOnce sync.Once
	keepAlive *time.Ticker
	poll      *time.Ticker
	sub       *bus.Subscription
}

func (c *streamConn) teardown() {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosed)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		if c.poll != nil {
			c.poll.Stop()
		}
		if c.sub != nil {
			c.sub.Close()
		}
	})
}

// Handler serves the per-monitor status stream.
type Handler struct {
	monitors          Registry
	metrics           MetricSource
	bus               Subscriber
	keepAliveInterval time.Duration
	pollInterval      time.Duration
}

// NewHandler creates a stream handler.
func NewHandler(monitors Registry, metrics MetricSource, subscriber Subscriber) *Handler {
	return &Handler{
		monitors:          monitors,
		metrics:           metrics,
		bus:               subscriber,
		keepAliveInterval: config.GetDurationEnv("STREAM_KEEPALIVE_INTERVAL", defaultKeepAliveInterval),
		pollInterval:      config.GetDurationEnv("STREAM_POLL_INTERVAL", defaultPollInterval),
	}
}

// ServeStream is the long-lived SSE endpoint. It terminates only on client
// disconnect or a failed write; there is no idle timeout at this layer.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	monitorID := chi.URLParam(r, "monitor_id")

	if _, err := h.monitors.Get(r.Context(), monitorID); err != nil {
		if errors.Is(err, monitorsServices.ErrNotFound) {
			handlers.NotFoundResponse(w, "monitor")
			return
		}
		handlers.InternalErrorResponse(w, "failed to load monitor")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		// No push-capable response channel in this environment.
		handlers.InternalErrorResponse(w, "streaming unsupported")
		return
	}

	conn := &streamConn{}
	conn.state.Store(stateConnecting)
	defer conn.teardown()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if !h.writeEvent(w, flusher, conn, "status", PlaceholderEvent()) {
		return
	}

	conn.state.Store(stateStreaming)
	slog.Info("Status stream opened", "monitor_id", monitorID, "remote_addr", r.RemoteAddr)

	ctx := r.Context()

	// Fresh metrics published by the probe executor nudge the stream between
	// poll ticks; the snapshot is still re-derived from the store.
	live := make(chan struct{}, 1)
	conn.sub = h.bus.Subscribe(ctx, bus.StreamTopic(monitorID), func(ctx context.Context, payload []byte) {
		select {
		case live <- struct{}{}:
		default:
		}
	})

	conn.keepAlive = time.NewTicker(h.keepAliveInterval)
	conn.poll = time.NewTicker(h.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Status stream closed by client", "monitor_id", monitorID)
			return
		case <-conn.keepAlive.C:
			if !h.writeRaw(w, flusher, conn, []byte(keepAliveComment)) {
				return
			}
		case <-conn.poll.C:
			if !h.pushSnapshot(ctx, w, flusher, conn, monitorID) {
				return
			}
		case <-live:
			if !h.pushSnapshot(ctx, w, flusher, conn, monitorID) {
				return
			}
		}
	}
}

// pushSnapshot re-queries the store and pushes the derived status event.
// A store read failure degrades to an empty event rather than terminating.
func (h *Handler) pushSnapshot(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, conn *streamConn, monitorID string) bool {
	samples, err := h.metrics.WindowMetrics(ctx, monitorID, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to load window for stream", "monitor_id", monitorID, "error", err)
		samples = nil
	}
	return h.writeEvent(w, flusher, conn, "status", SnapshotEvent(samples))
}

func (h *Handler) writeEvent(w http.ResponseWriter, flusher http.Flusher, conn *streamConn, name string, payload any) bool {
	frame, err := FormatEvent(name, payload)
	if err != nil {
		slog.Error("Failed to format stream event", "error", err)
		return true // keep the connection; the next tick may succeed
	}
	return h.writeRaw(w, flusher, conn, frame)
}

func (h *Handler) writeRaw(w http.ResponseWriter, flusher http.Flusher, conn *streamConn, frame []byte) bool {
	if conn.state.Load() == stateClosed {
		return false
	}
	if _, err := w.Write(frame); err != nil {
		slog.Debug("Stream write failed, tearing down", "error", err)
		conn.teardown()
		return false
	}
	flusher.Flush()
	return true
}
