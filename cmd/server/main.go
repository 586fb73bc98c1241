// Package main is the entry point for the revcast recurring-revenue forecast
// engine. It opens the warehouse, wires the pipeline runner, exporter,
// scheduler and HTTP server, and runs until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhalford/revcast/internal/config"
	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/internal/events"
	"github.com/mhalford/revcast/internal/export"
	"github.com/mhalford/revcast/internal/runner"
	"github.com/mhalford/revcast/internal/scheduler"
	"github.com/mhalford/revcast/internal/server"
	"github.com/mhalford/revcast/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting revcast")

	warehouse, err := database.OpenWarehouse(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open warehouse")
	}
	defer warehouse.Close()

	eventBus := events.NewBus()
	eventManager := events.NewManager(eventBus, log)

	pipelineRunner := runner.New(warehouse, eventManager, log)

	var exporter *export.Exporter
	if cfg.ExportEnabled {
		exporter = export.NewExporter(warehouse, cfg, eventManager, log)
		log.Info().Str("export_dir", cfg.ExportDir).Msg("Artifact export enabled")
	}

	srv := server.New(server.Config{
		Log:       log,
		Warehouse: warehouse,
		Config:    cfg,
		Runner:    pipelineRunner,
		EventBus:  eventBus,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	sched := scheduler.New(log)
	pipelineJob := scheduler.NewPipelineJob(pipelineRunner, exporter, log)
	if cfg.RunSchedule != "" {
		if err := sched.AddJob(cfg.RunSchedule, pipelineJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RunSchedule).Msg("Failed to register pipeline job")
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.RunOnStart {
		go func() {
			if _, err := pipelineRunner.Run(context.Background(), "startup"); err != nil {
				log.Error().Err(err).Msg("Startup pipeline run failed")
			}
		}()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
