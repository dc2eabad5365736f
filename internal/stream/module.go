package stream

import (
	"context"

	metricsServices "vigil/internal/metrics/services"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"
	"vigil/pkg/database"
	"vigil/pkg/module"

	"github.com/go-chi/chi/v5"
)

// Module serves the live status stream
type Module struct {
	*module.BaseModule
	handler *Handler
}

// New creates a new stream module
func New(mongodb *database.MongoDB, redis *database.Redis, eventBus *bus.Bus,
	monitors *monitorsServices.Service, metrics *metricsServices.Service) *Module {
	return &Module{
		BaseModule: module.NewBaseModule("stream", mongodb, redis),
		handler:    NewHandler(monitors, metrics, eventBus),
	}
}

// Routes registers the SSE endpoint. Kept on plain Chi: the stream is a
// long-lived push connection, not a request/response operation.
func (m *Module) Routes(r chi.Router) {
	r.Get("/monitors/{monitor_id}/stream", m.handler.ServeStream)
}

// StartBackgroundTasks implements module.Module interface
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	// Streams are driven by client connections; nothing to run here.
}

// Ensure Module implements the module.Module interface
var _ module.Module = (*Module)(nil)
