package app

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"polescan/internal/aggregator"
	"polescan/internal/config"
	"polescan/internal/detector"
	"polescan/internal/imagery"
	"polescan/internal/logger"
	"polescan/internal/pipeline"
	"polescan/internal/repository/sqlite"
	"polescan/internal/routes"
	"polescan/internal/services/storage"
	"polescan/internal/services/websocket"
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	runner        *pipeline.Runner
	bufferService *storage.BufferService
	hubService    *websocket.HubService

	poles      *sqlite.PoleRepository
	detections *sqlite.DetectionRepository
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	tiles := sqlite.NewTileRepository(db)
	jobs := sqlite.NewJobRepository(db)
	poles := sqlite.NewPoleRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	agg, err := aggregator.New(cfg.MergeRadiusMeters, cfg.BucketSizeDeg, poles, detections, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	runner, err := detector.NewDNNRunner(cfg.ModelPath, cfg.ModelConfigPath, cfg.ConfidenceThreshold, cfg.TargetClass, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load detection model: %w", err)
	}

	resolver := imagery.NewResolver(imagery.FromConfig(cfg.Providers), time.Duration(cfg.ProviderTimeout)*time.Second, log)
	buffer := storage.NewBufferService(cfg.SnapshotDirectory, cfg.SnapshotBufferLimit, log)
	hub := websocket.NewHubService(log)

	pipe := pipeline.NewRunner(cfg, tiles, jobs, resolver, runner, agg, hub, buffer, log)

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		runner:        pipe,
		bufferService: buffer,
		hubService:    hub,
		poles:         poles,
		detections:    detections,
	}, nil
}

func (a *App) Run() error {
	// Start background services
	go a.bufferService.Run(a.config.SnapshotFlushInterval)
	go a.hubService.Run()

	// Setup routes
	router := routes.SetupRoutes(a.runner, a.poles, a.detections, a.hubService, a.config, a.logger)

	fmt.Printf("🚀 Pole Detection Pipeline Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🗄️  Database: %s\n", a.config.DBPath)
	fmt.Printf("🛰️  Providers: %d configured\n", len(a.config.Providers))
	fmt.Printf("🤖 AI Model: %s\n", a.config.ModelPath)

	return http.ListenAndServe(fmt.Sprintf(":%d", a.config.Port), router)
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.db.Close()
}
