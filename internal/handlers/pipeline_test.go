package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"polescan/internal/aggregator"
	"polescan/internal/config"
	"polescan/internal/detector"
	"polescan/internal/dto"
	"polescan/internal/geo"
	"polescan/internal/logger"
	"polescan/internal/models"
	"polescan/internal/pipeline"
	"polescan/internal/repository/sqlite"
)

type gatedSource struct {
	gate chan struct{}
}

func (s *gatedSource) FetchTile(context.Context, geo.BBox, int, int) ([]byte, string, error) {
	<-s.gate
	return []byte("img"), "usgs", nil
}

type noopDetector struct{}

func (noopDetector) Detect([]byte) ([]detector.RawDetection, error) { return nil, nil }

type pipelineFixture struct {
	runner *pipeline.Runner
	jobs   *sqlite.JobRepository
	gate   chan struct{}
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	cfg := &config.Config{
		LogDirectory:         t.TempDir(),
		ConfidenceThreshold:  0.5,
		TargetClass:          "pole",
		TileSizePx:           640,
		PipelineWorkers:      2,
		FailureThreshold:     0.5,
		NoImageryMaxAttempts: 3,
		InferenceMaxAttempts: 2,
		MergeRadiusMeters:    8.0,
		BucketSizeDeg:        0.0002,
	}
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tiles := sqlite.NewTileRepository(db)
	jobs := sqlite.NewJobRepository(db)
	poles := sqlite.NewPoleRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	if _, err := tiles.BulkInsert([]models.Tile{
		{Row: 0, Col: 0, MinLon: -76.716, MinLat: 40.368, MaxLon: -76.715, MaxLat: 40.369},
	}); err != nil {
		t.Fatalf("Failed to seed tiles: %v", err)
	}

	agg, err := aggregator.New(cfg.MergeRadiusMeters, cfg.BucketSizeDeg, poles, detections, log)
	if err != nil {
		t.Fatalf("Failed to create aggregator: %v", err)
	}

	gate := make(chan struct{})
	runner := pipeline.NewRunner(cfg, tiles, jobs, &gatedSource{gate: gate}, noopDetector{}, agg, nil, nil, log)
	return &pipelineFixture{runner: runner, jobs: jobs, gate: gate}
}

func (f *pipelineFixture) waitForJob(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := f.jobs.Latest()
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if job != nil && job.Status != models.JobStatusRunning {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
}

func post(handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec
}

func TestRunPipelineHandler_Conflict(t *testing.T) {
	f := newPipelineFixture(t)
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	handler := RunPipelineHandler(f.runner, log)

	rec := post(handler, "/api/pipeline/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	var snapshot dto.JobStatusData
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if snapshot.JobID == "" || snapshot.Status != models.JobStatusRunning {
		t.Errorf("expected a running job snapshot, got %+v", snapshot)
	}

	// Second trigger while the first is gated open.
	if rec := post(handler, "/api/pipeline/run"); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, expected 409", rec.Code)
	}

	close(f.gate)
	f.waitForJob(t)
}

func TestRunPipelineHandler_MethodNotAllowed(t *testing.T) {
	f := newPipelineFixture(t)
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	handler := RunPipelineHandler(f.runner, log)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/pipeline/run", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, expected 405", rec.Code)
	}
}

func TestCancelPipelineHandler(t *testing.T) {
	f := newPipelineFixture(t)
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})

	// Nothing running yet.
	if rec := post(CancelPipelineHandler(f.runner, log), "/api/pipeline/cancel"); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, expected 409 with no job", rec.Code)
	}

	if rec := post(RunPipelineHandler(f.runner, log), "/api/pipeline/run"); rec.Code != http.StatusOK {
		t.Fatalf("trigger failed with status %d", rec.Code)
	}
	if rec := post(CancelPipelineHandler(f.runner, log), "/api/pipeline/cancel"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", rec.Code)
	}

	close(f.gate)
	f.waitForJob(t)
}

func TestResetTilesHandler_ConflictWhileRunning(t *testing.T) {
	f := newPipelineFixture(t)
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})

	if rec := post(RunPipelineHandler(f.runner, log), "/api/pipeline/run"); rec.Code != http.StatusOK {
		t.Fatalf("trigger failed with status %d", rec.Code)
	}

	if rec := post(ResetTilesHandler(f.runner, log), "/api/tiles/reset"); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, expected 409 while running", rec.Code)
	}

	close(f.gate)
	f.waitForJob(t)

	rec := post(ResetTilesHandler(f.runner, log), "/api/tiles/reset")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["reset"] != 1 {
		t.Errorf("expected 1 tile reset, got %d", body["reset"])
	}
}

func TestPipelineStatusHandler(t *testing.T) {
	f := newPipelineFixture(t)
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})

	rec := httptest.NewRecorder()
	PipelineStatusHandler(f.runner, log)(rec, httptest.NewRequest(http.MethodGet, "/api/pipeline/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var status dto.JobStatusData
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Status != "idle" {
		t.Errorf("expected idle, got %s", status.Status)
	}
	if status.Tiles.Pending != 1 {
		t.Errorf("expected 1 pending tile, got %+v", status.Tiles)
	}
}
