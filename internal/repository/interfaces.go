package repository

import (
	"errors"

	"polescan/internal/geo"
	"polescan/internal/models"
)

// ErrAlreadyRunning is returned by JobRepository.Create when another job
// holds the running slot. Surfaced to API callers as a 409.
var ErrAlreadyRunning = errors.New("a pipeline job is already running")

// TileRepository owns the tile state machine.
type TileRepository interface {
	// BulkInsert creates grid tiles as Pending, skipping existing grid cells.
	BulkInsert(tiles []models.Tile) (int, error)

	// ListEligible returns Pending tiles plus Failed tiles still inside
	// the retry budget for their failure kind. Persistence failures
	// consume the noImageryMax budget.
	ListEligible(noImageryMax, inferenceMax, limit int) ([]models.Tile, error)

	// Claim atomically moves a tile to Processing and increments its
	// attempt count. Returns false when another worker won the race or
	// the tile is no longer claimable.
	Claim(tile *models.Tile) (bool, error)

	MarkDone(id int64) error
	MarkFailed(id int64, kind, reason string) error

	// ResetAll returns every tile to Pending in a single statement,
	// bypassing per-row state checks. Administrative recovery only.
	ResetAll() (int64, error)

	Counts() (models.TileCounts, error)
}

// JobRepository owns the job lifecycle and the single-running invariant.
type JobRepository interface {
	// Create inserts a Running job; fails with ErrAlreadyRunning when one
	// exists. Check and insert happen in one transaction.
	Create(job *models.Job) error

	Finish(id string, status models.JobStatus, reason string) error

	// RecordTileResult bumps processed and succeeded/failed counters.
	RecordTileResult(id string, succeeded bool) error

	Latest() (*models.Job, error)
}

// PoleRepository owns the long-lived aggregated output.
type PoleRepository interface {
	Insert(pole *models.Pole) (int64, error)
	Update(pole *models.Pole) error
	ListActive() ([]models.Pole, error)
	ListInBBox(bbox geo.BBox, minConfidence float64, limit int) ([]models.Pole, error)
	MarkSuperseded(id int64) error
}

// DetectionRepository stores per-tile detections as pole provenance.
type DetectionRepository interface {
	Insert(det *models.Detection) (int64, error)
	All() ([]models.Detection, error)
	GetByPoleID(poleID int64) ([]models.Detection, error)
}
