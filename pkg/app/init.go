package app

import (
	"context"
	"log"
	"log/slog"

	"vigil/pkg/bus"
	"vigil/pkg/config"
	"vigil/pkg/database"
	"vigil/pkg/logging"

	"github.com/joho/godotenv"
)

// AppContext holds the shared application context and dependencies
type AppContext struct {
	MongoDB          *database.MongoDB
	Redis            *database.Redis
	Bus              *bus.Bus
	TelemetryManager *logging.TelemetryManager
	ServiceName      string
	shutdownFuncs    []func(context.Context) error
}

// InitializeApp initializes common application dependencies
func InitializeApp(serviceName string) (*AppContext, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	ctx := context.Background()

	telemetryManager := logging.NewTelemetryManager()
	if err := telemetryManager.Initialize(ctx); err != nil {
		log.Printf("Warning: Failed to initialize telemetry: %v", err)
		// Continue without telemetry rather than failing
	}

	mongodb, err := database.NewMongoDB(ctx, serviceName)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		return nil, err
	}
	slog.Info("Connected to MongoDB")

	redis, err := database.NewRedis(ctx)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		return nil, err
	}
	slog.Info("Connected to Redis")

	appCtx := &AppContext{
		MongoDB:          mongodb,
		Redis:            redis,
		Bus:              bus.New(redis),
		TelemetryManager: telemetryManager,
		ServiceName:      serviceName,
	}

	appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, mongodb.Close)
	appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, func(ctx context.Context) error {
		return redis.Close()
	})
	appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, telemetryManager.Shutdown)

	return appCtx, nil
}

// Shutdown gracefully shuts down all application dependencies
func (a *AppContext) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down application", "service", a.ServiceName)

	for _, shutdown := range a.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}

	slog.Info("Application shutdown completed", "service", a.ServiceName)
	return nil
}

// GetPort returns the port from environment or default
func GetPort(defaultPort string) string {
	return config.GetEnv("PORT", defaultPort)
}
