package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"particle-universe/application/commands"
	"particle-universe/application/services"
	simconfig "particle-universe/domain/config"
	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

func main() {
	// Initialize context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize dependency container
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	// Hot reload of the simulation tuning
	if cfg.SimulationConfigFile != "" {
		watcher, err := config.NewTuningWatcher(cfg.SimulationConfigFile, cfg.Environment, container.Tuning, logger)
		if err != nil {
			logger.Warn("Tuning hot reload disabled", zap.Error(err))
		} else {
			watcher.OnChange(func(tuning *simconfig.SimulationConfig) {
				logger.Info("Next tick uses new tuning",
					zap.Float64("interactionRadius", tuning.Interaction.Radius),
				)
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	if cfg.TickInterval > 0 {
		go runScheduler(ctx, container, cfg.TickInterval)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Router.Setup(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("storeDriver", cfg.StoreDriver),
			zap.Duration("tickInterval", cfg.TickInterval),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown; stops the scheduler before the server drains
	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Clean up resources
	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}

// runScheduler triggers a tick every interval until ctx is cancelled. A
// tick still running when the next one is due is skipped, not queued.
func runScheduler(ctx context.Context, container *di.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, end := container.Tracer.StartSegment(ctx, "ScheduledTick")
			result, err := container.CommandBus.Send(tickCtx, commands.TriggerTickCommand{RequestedBy: "scheduler"})
			end(err)
			switch {
			case err == nil:
				report := result.(*services.TickReport)
				container.Logger.Debug("Scheduled tick committed",
					zap.Int64("tickNumber", report.TickNumber),
				)
			case pkgerrors.IsConcurrentTick(err):
				container.Logger.Warn("Scheduled tick skipped, previous tick still running")
			case errors.Is(err, context.Canceled):
				return
			default:
				container.Logger.Error("Scheduled tick failed", zap.Error(err))
			}
		}
	}
}
