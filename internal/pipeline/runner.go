package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"polescan/internal/aggregator"
	"polescan/internal/config"
	"polescan/internal/detector"
	"polescan/internal/dto"
	"polescan/internal/geo"
	"polescan/internal/imagery"
	"polescan/internal/logger"
	"polescan/internal/models"
	"polescan/internal/repository"
)

// ErrNotRunning is returned by Cancel when no job is in flight.
var ErrNotRunning = errors.New("no pipeline job is running")

// ErrJobRunning guards operations that must not race a live job.
var ErrJobRunning = errors.New("a pipeline job is running")

// Broadcaster pushes progress events to connected viewers.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Snapshotter archives annotated tile images.
type Snapshotter interface {
	Add(imageData []byte, tileID int64, provider string)
}

// tile processing outcomes
const (
	outcomeDone    = "done"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped" // lost the claim race, not counted
)

// Runner drives one pipeline job at a time: eligible tiles are claimed,
// fetched, run through the detector and folded into the pole set by a
// bounded worker pool. Single-flight is enforced by the job store, so it
// holds even across processes sharing the database.
type Runner struct {
	cfg        *config.Config
	tiles      repository.TileRepository
	jobs       repository.JobRepository
	source     imagery.Source
	detector   detector.Runner
	aggregator *aggregator.Aggregator
	hub        Broadcaster
	snapshots  Snapshotter
	logger     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	runID  string // job the cancel func belongs to
}

// NewRunner wires the pipeline. hub and snapshots may be nil.
func NewRunner(cfg *config.Config, tiles repository.TileRepository, jobs repository.JobRepository,
	source imagery.Source, det detector.Runner, agg *aggregator.Aggregator,
	hub Broadcaster, snapshots Snapshotter, logger *logger.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		tiles:      tiles,
		jobs:       jobs,
		source:     source,
		detector:   det,
		aggregator: agg,
		hub:        hub,
		snapshots:  snapshots,
		logger:     logger,
	}
}

// Trigger starts a new job and returns its ID. When a job is already
// running the job store rejects the insert with ErrAlreadyRunning and no
// second run starts.
func (r *Runner) Trigger() (string, error) {
	job := &models.Job{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	if err := r.jobs.Create(job); err != nil {
		return "", err
	}

	// The run outlives the triggering request.
	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancel = cancel
	r.runID = job.ID
	r.mu.Unlock()

	r.logger.Info("🚀 Pipeline job %s started", job.ID)
	go r.run(runCtx, job)

	return job.ID, nil
}

// Cancel stops the running job. No new tiles are claimed; tiles already
// in flight complete and are recorded before the job finalizes.
func (r *Runner) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return ErrNotRunning
	}
	r.cancel()
	return nil
}

// Status reports the latest job alongside current tile counts. With no
// job history the status is "idle".
func (r *Runner) Status() (dto.JobStatusData, error) {
	job, err := r.jobs.Latest()
	if err != nil {
		return dto.JobStatusData{}, err
	}

	counts, err := r.tiles.Counts()
	if err != nil {
		return dto.JobStatusData{}, err
	}

	return dto.FromJob(job, counts), nil
}

// ResetTiles returns the whole grid to Pending. Refused while a job is
// running; a live worker would immediately re-fail the state checks.
func (r *Runner) ResetTiles() (int64, error) {
	r.mu.Lock()
	running := r.cancel != nil
	r.mu.Unlock()

	if running {
		return 0, ErrJobRunning
	}

	n, err := r.tiles.ResetAll()
	if err != nil {
		return 0, err
	}

	r.logger.Info("Reset %d tile(s) to pending", n)
	return n, nil
}

func (r *Runner) run(ctx context.Context, job *models.Job) {
	eligible, err := r.tiles.ListEligible(r.cfg.NoImageryMaxAttempts, r.cfg.InferenceMaxAttempts, 0)
	if err != nil {
		r.logger.Error("Failed to list eligible tiles: %v", err)
		r.finish(job.ID, models.JobStatusFailed, fmt.Sprintf("failed to list tiles: %v", err))
		return
	}

	counts, err := r.tiles.Counts()
	if err != nil {
		r.logger.Error("Failed to count tiles: %v", err)
		counts = models.TileCounts{}
	}

	r.logger.Info("Job %s: %d eligible tile(s) of %d total", job.ID, len(eligible), counts.Total)

	workers := r.cfg.PipelineWorkers
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))

	var wg sync.WaitGroup
	var processed, succeeded, failed atomic.Int64
	canceled := false

	for i := range eligible {
		if err := sem.Acquire(ctx, 1); err != nil {
			canceled = true
			break
		}

		tile := eligible[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			outcome, provider, detections := r.processTile(&tile)
			if outcome == outcomeSkipped {
				return
			}

			ok := outcome == outcomeDone
			processed.Add(1)
			if ok {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}

			if err := r.jobs.RecordTileResult(job.ID, ok); err != nil {
				r.logger.Error("Failed to record tile %d result: %v", tile.ID, err)
			}

			r.publish(dto.ProgressEvent{
				JobID:      job.ID,
				TileID:     tile.ID,
				TileStatus: outcome,
				Provider:   provider,
				Detections: detections,
				Processed:  int(processed.Load()),
				Succeeded:  int(succeeded.Load()),
				Failed:     int(failed.Load()),
				Total:      counts.Total,
			})
		}()
	}

	wg.Wait()

	p, f := processed.Load(), failed.Load()

	status := models.JobStatusCompleted
	reason := ""
	switch {
	case canceled:
		status = models.JobStatusFailed
		reason = "canceled"
	case p > 0 && float64(f)/float64(p) > r.cfg.FailureThreshold:
		status = models.JobStatusFailed
		reason = fmt.Sprintf("%d of %d tiles failed", f, p)
	}

	r.finish(job.ID, status, reason)
	r.logger.Info("✅ Job %s finished: %s (%d processed, %d succeeded, %d failed)",
		job.ID, status, p, succeeded.Load(), f)
}

// processTile runs one tile through the full chain. Fetch and inference
// deliberately ignore job cancellation so an in-flight tile always
// reaches Done or Failed, never a stranded Processing row.
func (r *Runner) processTile(tile *models.Tile) (outcome, provider string, detections int) {
	claimed, err := r.tiles.Claim(tile)
	if err != nil {
		r.logger.Error("Failed to claim tile %d: %v", tile.ID, err)
		return outcomeSkipped, "", 0
	}
	if !claimed {
		return outcomeSkipped, "", 0
	}

	bbox := geo.BBox{MinLon: tile.MinLon, MinLat: tile.MinLat, MaxLon: tile.MaxLon, MaxLat: tile.MaxLat}
	size := r.cfg.TileSizePx

	data, provider, err := r.source.FetchTile(context.Background(), bbox, size, size)
	if err != nil {
		r.fail(tile.ID, models.FailureNoImagery, err)
		return outcomeFailed, "", 0
	}

	// Detector implementations own the confidence/class filter.
	results, err := r.detector.Detect(data)
	if err != nil {
		r.fail(tile.ID, models.FailureInference, err)
		return outcomeFailed, provider, 0
	}

	for _, rd := range results {
		det, err := aggregator.BuildDetection(tile.ID, rd, bbox, size, size)
		if err != nil {
			r.logger.Warning("Tile %d: dropping malformed detection: %v", tile.ID, err)
			continue
		}

		res, err := r.aggregator.Offer(det)
		if err != nil {
			r.fail(tile.ID, models.FailurePersistence, err)
			return outcomeFailed, provider, detections
		}
		if !res.Skipped {
			detections++
		}
	}

	if r.cfg.SaveSnapshots && r.snapshots != nil && len(results) > 0 {
		annotated, err := detector.Annotate(data, results)
		if err != nil {
			r.logger.Warning("Tile %d: failed to annotate snapshot: %v", tile.ID, err)
		} else {
			r.snapshots.Add(annotated, tile.ID, provider)
		}
	}

	if err := r.tiles.MarkDone(tile.ID); err != nil {
		r.logger.Error("Failed to mark tile %d done: %v", tile.ID, err)
		return outcomeFailed, provider, detections
	}

	return outcomeDone, provider, detections
}

func (r *Runner) fail(tileID int64, kind string, cause error) {
	r.logger.Warning("Tile %d failed (%s): %v", tileID, kind, cause)
	if err := r.tiles.MarkFailed(tileID, kind, cause.Error()); err != nil {
		r.logger.Error("Failed to mark tile %d failed: %v", tileID, err)
	}
}

// finish releases this run's cancel slot and finalizes the job row. The
// slot check is keyed by job ID: once a newer Trigger has registered its
// own cancel func, a straggling finalize from an older run must not wipe
// it. The slot clears before the terminal state commits, so there is no
// window where a fresh Trigger can register and then be unregistered.
func (r *Runner) finish(jobID string, status models.JobStatus, reason string) {
	r.mu.Lock()
	if r.runID == jobID {
		r.cancel = nil
		r.runID = ""
	}
	r.mu.Unlock()

	if err := r.jobs.Finish(jobID, status, reason); err != nil {
		r.logger.Error("Failed to finalize job %s: %v", jobID, err)
	}
}

func (r *Runner) publish(event dto.ProgressEvent) {
	if r.hub == nil {
		return
	}
	msg, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to encode progress event: %v", err)
		return
	}
	r.hub.Broadcast(msg)
}
