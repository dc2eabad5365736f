package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	metricsServices "vigil/internal/metrics/services"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"
	"vigil/pkg/database"
	"vigil/pkg/module"

	"github.com/go-chi/chi/v5"
)

// Module wires the alert state machine and router to the event bus
type Module struct {
	*module.BaseModule
	bus     *bus.Bus
	store   *StateStore
	machine *StateMachine
	router  *Router
}

// New creates a new alerts module
func New(mongodb *database.MongoDB, redis *database.Redis, eventBus *bus.Bus,
	monitors *monitorsServices.Service, metrics *metricsServices.Service) (*Module, error) {
	if redis == nil {
		return nil, fmt.Errorf("redis connection is required")
	}

	store := NewStateStore(redis)

	return &Module{
		BaseModule: module.NewBaseModule("alerts", mongodb, redis),
		bus:        eventBus,
		store:      store,
		machine:    NewStateMachine(store, eventBus),
		router:     NewRouter(monitors, metrics),
	}, nil
}

// Routes registers Chi routes for this module
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// StartBackgroundTasks subscribes the state machine and router to the bus
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	slog.Info("Starting alert pipeline", "module", m.Name())

	eventSub := m.bus.Subscribe(ctx, bus.TopicMonitorEvents, func(ctx context.Context, payload []byte) {
		var event bus.MonitorEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			slog.Error("Failed to decode monitor event", "error", err)
			return
		}
		if err := m.machine.HandleEvent(ctx, event); err != nil {
			slog.Error("State machine failed to handle event",
				"monitor_id", event.MonitorID,
				"type", string(event.Type),
				"error", err)
		}
	})
	defer eventSub.Close()

	requestSub := m.bus.Subscribe(ctx, bus.TopicAlertRequests, func(ctx context.Context, payload []byte) {
		var request bus.AlertRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			slog.Error("Failed to decode alert request", "error", err)
			return
		}
		m.router.Route(ctx, request)
	})
	defer requestSub.Close()

	select {
	case <-ctx.Done():
	case <-m.StopChannel():
	}
	slog.Info("Alert pipeline stopped", "module", m.Name())
}

// GetStateStore exposes the per-monitor state store to the probe executor,
// which owns the failure counter updates.
func (m *Module) GetStateStore() *StateStore {
	return m.store
}

// Ensure Module implements the module.Module interface
var _ module.Module = (*Module)(nil)
