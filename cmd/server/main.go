// Package main is the entry point for the allocator, a Black-Litterman
// portfolio allocation service. It blends market-implied equilibrium returns
// with directional forecast views and solves for constrained target weights
// on a schedule.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env supported)
//  2. Initialize structured logging
//  3. Open the history and runs databases
//  4. Build the rebalance service and warm up return windows (snapshot
//     first, stored price history for anything the snapshot missed)
//  5. Register the scheduled rebalance job
//  6. Start the HTTP server and wait for a shutdown signal
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/blending"
	"github.com/aristath/allocator/internal/modules/history"
	"github.com/aristath/allocator/internal/modules/rebalance"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/aristath/allocator/internal/server"
	"github.com/aristath/allocator/pkg/logger"
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

	log.Info().
		Str("blend_policy", cfg.Engine.BlendPolicy).
		Str("strategy", cfg.Engine.Strategy).
		Int("lookback", cfg.Engine.Lookback).
		Msg("Starting allocator")

	// Databases
	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "history.db"),
		Name: "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	runsDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "runs.db"),
		Name: "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer runsDB.Close()

	priceHistory, err := history.NewHistoryDB(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price history store")
	}

	runRepo, err := rebalance.NewRunRepository(runsDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run repository")
	}

	// Engine
	blender, err := blending.New(cfg.Engine.BlendPolicy, cfg.Engine.Tau, cfg.Engine.Delta, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize blender")
	}

	tracker := history.NewTracker(cfg.Engine.Lookback, log)
	snapshotPath := filepath.Join(cfg.DataDir, "tracker.msgpack")
	if _, err := tracker.RestoreSnapshot(snapshotPath); err != nil {
		log.Warn().Err(err).Msg("Failed to restore tracker snapshot, starting cold")
	}

	service := rebalance.New(cfg.Engine, tracker, blender, runRepo, log)

	// Warm up any configured assets the snapshot did not cover
	for _, symbol := range cfg.Symbols {
		if tracker.Has(symbol) {
			continue
		}
		returns, err := priceHistory.WarmupReturns(symbol, cfg.Engine.Lookback)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load warmup history")
			continue
		}
		service.AddAsset(symbol, returns)
	}

	// Scheduler: forecast and observation providers are external
	// collaborators wired by the deployment; the scheduled job runs
	// against whatever was last pushed through the API when absent.
	hub := server.NewTargetHub(log)
	sched := scheduler.New(log)
	job := scheduler.NewRebalanceJob(service, nil, nil, hub, log)
	if err := sched.AddJob(cfg.RebalanceSchedule, job); err != nil {
		log.Fatal().Err(err).Msg("Failed to register rebalance job")
	}
	sched.Start()

	// HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Service: service,
		Runs:    runRepo,
		Hub:     hub,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	if err := tracker.SaveSnapshot(snapshotPath); err != nil {
		log.Error().Err(err).Msg("Failed to save tracker snapshot")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Allocator stopped")
}
