package routes

import (
	"context"
	"errors"
	"net/http"

	"vigil/internal/monitors/dto"
	"vigil/internal/monitors/services"

	"github.com/danielgtaylor/huma/v2"
)

// Module represents the monitors routes module
type Module struct {
	service *services.Service
}

// NewModule creates a new routes module
func NewModule(service *services.Service) *Module {
	return &Module{
		service: service,
	}
}

// RegisterUnifiedRoutes registers all monitor registry routes with the Huma API
func (m *Module) RegisterUnifiedRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-monitor",
		Method:        http.MethodPost,
		Path:          "/monitors",
		Summary:       "Register a monitor",
		DefaultStatus: http.StatusCreated,
	}, m.createMonitorHandler)

	huma.Get(api, "/monitors", m.listMonitorsHandler)
	huma.Get(api, "/monitors/{monitor_id}", m.getMonitorHandler)
}

func (m *Module) createMonitorHandler(ctx context.Context, input *dto.CreateMonitorInput) (*dto.CreateMonitorOutput, error) {
	monitor, err := m.service.Create(ctx, input)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			return nil, huma.Error400BadRequest("Invalid monitor configuration", &huma.ErrorDetail{
				Message:  verr.Message,
				Location: "body." + verr.Field,
			})
		}
		return nil, huma.Error500InternalServerError("Failed to register monitor", err)
	}

	out := &dto.CreateMonitorOutput{}
	out.Body.MonitorID = monitor.ID
	return out, nil
}

func (m *Module) getMonitorHandler(ctx context.Context, input *dto.GetMonitorInput) (*dto.GetMonitorOutput, error) {
	monitor, err := m.service.Get(ctx, input.MonitorID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, huma.Error404NotFound("Monitor not found")
		}
		return nil, huma.Error500InternalServerError("Failed to retrieve monitor", err)
	}

	return &dto.GetMonitorOutput{Body: *monitor}, nil
}

func (m *Module) listMonitorsHandler(ctx context.Context, input *dto.ListMonitorsInput) (*dto.ListMonitorsOutput, error) {
	monitors, err := m.service.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list monitors", err)
	}

	out := &dto.ListMonitorsOutput{}
	out.Body.Monitors = monitors
	out.Body.Total = len(monitors)
	return out, nil
}
