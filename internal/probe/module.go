package probe

import (
	"context"
	"encoding/json"
	"log/slog"

	"vigil/internal/alerts"
	metricsServices "vigil/internal/metrics/services"
	monitorsServices "vigil/internal/monitors/services"
	"vigil/pkg/bus"
	"vigil/pkg/config"
	"vigil/pkg/database"
	"vigil/pkg/module"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
)

// Module runs the probe dispatcher on a fixed cadence and fans incoming
// probe requests out to the executor.
type Module struct {
	*module.BaseModule
	bus        *bus.Bus
	dispatcher *Dispatcher
	executor   *Executor
	cron       *cron.Cron
}

// New creates a new probe module
func New(mongodb *database.MongoDB, redis *database.Redis, eventBus *bus.Bus,
	monitors *monitorsServices.Service, metrics *metricsServices.Service, state *alerts.StateStore) *Module {
	return &Module{
		BaseModule: module.NewBaseModule("probe", mongodb, redis),
		bus:        eventBus,
		dispatcher: NewDispatcher(monitors, eventBus),
		executor:   NewExecutor(monitors, metrics, state, eventBus),
		cron:       cron.New(),
	}
}

// Routes registers Chi routes for this module
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// StartBackgroundTasks starts the dispatch schedule and the executor fan-out
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	sub := m.bus.Subscribe(ctx, bus.TopicProbeDispatch, func(ctx context.Context, payload []byte) {
		var request bus.ProbeRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			slog.Error("Failed to decode probe request", "error", err)
			return
		}
		// One goroutine per probe: a slow target must not hold up the rest,
		// and overlapping probes for the same monitor are tolerated.
		go m.executor.ExecuteProbe(ctx, request.MonitorID)
	})
	defer sub.Close()

	schedule := config.GetEnv("PROBE_SCHEDULE", "@every 60s")
	if _, err := m.cron.AddFunc(schedule, func() {
		m.dispatcher.DispatchTick(context.Background())
	}); err != nil {
		slog.Error("Failed to schedule probe dispatch", "schedule", schedule, "error", err)
		return
	}

	m.cron.Start()
	slog.Info("Probe dispatcher scheduled", "schedule", schedule, "module", m.Name())

	select {
	case <-ctx.Done():
	case <-m.StopChannel():
	}

	cronCtx := m.cron.Stop()
	<-cronCtx.Done()
	slog.Info("Probe module stopped", "module", m.Name())
}

// Ensure Module implements the module.Module interface
var _ module.Module = (*Module)(nil)
