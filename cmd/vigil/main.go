package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"vigil/internal/alerts"
	"vigil/internal/anomaly"
	"vigil/internal/monitors"
	"vigil/internal/probe"
	"vigil/internal/stream"
	"vigil/pkg/app"
	"vigil/pkg/handlers"
	"vigil/pkg/module"
	"vigil/pkg/version"

	metricsServices "vigil/internal/metrics/services"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "go.uber.org/automaxprocs"
)

// customLoggerMiddleware logs requests but excludes health check endpoints
func customLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

func main() {
	versionInfo := version.Get()
	log.Printf("vigil %s | build %s (%s)", version.GetVersionString(), versionInfo.BuildDate, versionInfo.Platform)
	log.Printf("CPUs: %d | GOMAXPROCS: %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))

	ctx := context.Background()

	appCtx, err := app.InitializeApp("vigil")
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer appCtx.Shutdown(ctx)

	r := chi.NewRouter()

	// Global middleware. No global timeout: the status stream is long-lived.
	r.Use(customLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", handlers.HealthHandler("vigil"))

	// Shared services
	metricsService := metricsServices.NewService(appCtx.MongoDB.Database)
	if err := metricsService.InitializeModule(ctx); err != nil {
		slog.Error("Failed to initialize metric store", "error", err)
	}

	// Initialize modules
	monitorsModule, err := monitors.New(appCtx.MongoDB, appCtx.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize monitors module: %v", err)
	}
	if err := monitorsModule.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize monitor registry", "error", err)
	}
	monitorsService := monitorsModule.GetService()

	alertsModule, err := alerts.New(appCtx.MongoDB, appCtx.Redis, appCtx.Bus, monitorsService, metricsService)
	if err != nil {
		log.Fatalf("Failed to initialize alerts module: %v", err)
	}
	anomalyModule := anomaly.New(appCtx.MongoDB, appCtx.Redis, appCtx.Bus, metricsService)
	probeModule := probe.New(appCtx.MongoDB, appCtx.Redis, appCtx.Bus, monitorsService, metricsService, alertsModule.GetStateStore())
	streamModule := stream.New(appCtx.MongoDB, appCtx.Redis, appCtx.Bus, monitorsService, metricsService)

	modules := []module.Module{monitorsModule, alertsModule, anomalyModule, probeModule, streamModule}

	// Unified Huma API for the request/response surface
	humaConfig := huma.DefaultConfig("Vigil API", versionInfo.Version)
	humaConfig.Info.Description = "URL health monitoring with statistical anomaly detection"
	unifiedAPI := humachi.New(r, humaConfig)
	monitorsModule.RegisterUnifiedRoutes(unifiedAPI)

	// The status stream stays on plain Chi
	streamModule.Routes(r)

	// Module health endpoints
	r.Route("/alerts", alertsModule.Routes)
	r.Route("/anomaly", anomalyModule.Routes)
	r.Route("/probe", probeModule.Routes)

	// Start background services for all modules
	for _, mod := range modules {
		go mod.StartBackgroundTasks(ctx)
	}

	port := app.GetPort("8080")
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: event streams write for the connection's lifetime.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("Starting vigil server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Received shutdown signal, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	for _, mod := range modules {
		mod.Stop()
	}

	slog.Info("Vigil shutdown completed")
}
