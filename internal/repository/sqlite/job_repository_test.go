package sqlite

import (
	"errors"
	"testing"
	"time"

	"polescan/internal/models"
	"polescan/internal/repository"
)

func TestJobRepository_SingleRunningJob(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	first := &models.Job{ID: "job-1", StartedAt: time.Now().UTC()}
	if err := repo.Create(first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.Status != models.JobStatusRunning {
		t.Errorf("expected running status, got %s", first.Status)
	}

	second := &models.Job{ID: "job-2", StartedAt: time.Now().UTC()}
	if err := repo.Create(second); !errors.Is(err, repository.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	// Finishing the first frees the slot.
	if err := repo.Finish(first.ID, models.JobStatusCompleted, ""); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if err := repo.Create(second); err != nil {
		t.Errorf("Create after finish failed: %v", err)
	}
}

func TestJobRepository_FinishRequiresRunning(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	job := &models.Job{ID: "job-1", StartedAt: time.Now().UTC()}
	if err := repo.Create(job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Finish(job.ID, models.JobStatusFailed, "canceled"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	// A second finish has no running row to update.
	if err := repo.Finish(job.ID, models.JobStatusCompleted, ""); err == nil {
		t.Error("expected error finishing a finished job")
	}
}

func TestJobRepository_RecordTileResult(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	job := &models.Job{ID: "job-1", StartedAt: time.Now().UTC()}
	if err := repo.Create(job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repo.RecordTileResult(job.ID, true); err != nil {
			t.Fatalf("RecordTileResult failed: %v", err)
		}
	}
	if err := repo.RecordTileResult(job.ID, false); err != nil {
		t.Fatalf("RecordTileResult failed: %v", err)
	}

	latest, err := repo.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.TilesProcessed != 4 || latest.TilesSucceeded != 3 || latest.TilesFailed != 1 {
		t.Errorf("unexpected counters: %+v", latest)
	}
}

func TestJobRepository_Latest(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	latest, err := repo.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil with empty history, got %+v", latest)
	}

	first := &models.Job{ID: "job-1", StartedAt: time.Now().UTC().Add(-time.Hour)}
	if err := repo.Create(first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Finish(first.ID, models.JobStatusFailed, "3 of 4 tiles failed"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	second := &models.Job{ID: "job-2", StartedAt: time.Now().UTC()}
	if err := repo.Create(second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	latest, err = repo.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.ID != "job-2" {
		t.Fatalf("expected job-2 as latest, got %+v", latest)
	}
	if latest.FinishedAt != nil {
		t.Errorf("running job should have no finish time")
	}
}
