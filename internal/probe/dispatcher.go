package probe

import (
	"context"
	"log/slog"

	monitorsModels "vigil/internal/monitors/models"
	"vigil/pkg/bus"
)

// Registry is the monitor-config surface the probe pipeline consumes.
type Registry interface {
	Get(ctx context.Context, id string) (*monitorsModels.MonitorConfig, error)
	List(ctx context.Context) ([]monitorsModels.MonitorConfig, error)
}

// Publisher is the outbound side of the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Dispatcher enumerates active monitors on each tick and schedules one probe
// per monitor over the bus.
type Dispatcher struct {
	registry  Registry
	publisher Publisher
}

// NewDispatcher creates a probe dispatcher.
func NewDispatcher(registry Registry, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		publisher: publisher,
	}
}

// DispatchTick schedules one probe per registered monitor. A registry read
// failure aborts the tick; the next tick proceeds independently. A config
// without an ID is skipped and logged without failing the tick.
func (d *Dispatcher) DispatchTick(ctx context.Context) {
	monitors, err := d.registry.List(ctx)
	if err != nil {
		slog.Error("Probe tick aborted, failed to list monitors", "error", err)
		return
	}

	dispatched := 0
	for _, monitor := range monitors {
		if monitor.ID == "" {
			slog.Warn("Skipping monitor config without ID", "url", monitor.URL)
			continue
		}

		request := bus.ProbeRequest{MonitorID: monitor.ID}
		if err := d.publisher.Publish(ctx, bus.TopicProbeDispatch, request); err != nil {
			slog.Error("Failed to schedule probe",
				"monitor_id", monitor.ID,
				"error", err)
			continue
		}
		dispatched++
	}

	slog.Debug("Probe tick dispatched", "monitors", len(monitors), "scheduled", dispatched)
}
