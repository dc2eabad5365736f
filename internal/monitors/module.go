package monitors

import (
	"context"
	"fmt"
	"log/slog"

	"vigil/internal/monitors/routes"
	"vigil/internal/monitors/services"
	"vigil/pkg/database"
	"vigil/pkg/module"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

// Module represents the monitor registry module
type Module struct {
	*module.BaseModule
	service *services.Service
	routes  *routes.Module
}

// New creates a new monitors module
func New(mongodb *database.MongoDB, redis *database.Redis) (*Module, error) {
	if mongodb == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	service := services.NewService(mongodb.Database)

	return &Module{
		BaseModule: module.NewBaseModule("monitors", mongodb, redis),
		service:    service,
		routes:     routes.NewModule(service),
	}, nil
}

// Initialize sets up database indexes
func (m *Module) Initialize(ctx context.Context) error {
	if err := m.service.InitializeModule(ctx); err != nil {
		return fmt.Errorf("failed to initialize monitors service: %w", err)
	}
	slog.Info("Monitors module initialized")
	return nil
}

// Routes registers Chi routes for this module
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// RegisterUnifiedRoutes registers routes on the shared Huma API
func (m *Module) RegisterUnifiedRoutes(api huma.API) {
	m.routes.RegisterUnifiedRoutes(api)
}

// StartBackgroundTasks implements module.Module interface
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	// Registry is request-driven; nothing to run in the background.
}

// GetService returns the registry service for use by other modules
func (m *Module) GetService() *services.Service {
	return m.service
}

// Ensure Module implements the module.Module interface
var _ module.Module = (*Module)(nil)
