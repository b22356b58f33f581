package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"polescan/internal/models"
	"polescan/internal/repository"
)

// JobRepository implements repository.JobRepository for SQLite.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new SQLite job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a Running job. The running-job check and the insert
// share one transaction (plus the DB write lock), so two concurrent
// triggers cannot both create a job.
func (r *JobRepository) Create(job *models.Job) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var running int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = 'running'`).Scan(&running); err != nil {
		return fmt.Errorf("failed to check running jobs: %w", err)
	}
	if running > 0 {
		return repository.ErrAlreadyRunning
	}

	_, err = tx.Exec(`
		INSERT INTO jobs (id, status, started_at)
		VALUES (?, 'running', ?)
	`, job.ID, job.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = models.JobStatusRunning
	return nil
}

// Finish moves a Running job to a terminal state.
func (r *JobRepository) Finish(id string, status models.JobStatus, reason string) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE jobs
		SET status = ?, finished_at = ?, reason = ?
		WHERE id = ? AND status = 'running'
	`, string(status), time.Now().UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %s was not running", id)
	}
	return nil
}

// RecordTileResult bumps the processed counter and the succeeded or
// failed counter for one resolved tile.
func (r *JobRepository) RecordTileResult(id string, succeeded bool) error {
	r.db.Lock()
	defer r.db.Unlock()

	column := "tiles_failed"
	if succeeded {
		column = "tiles_succeeded"
	}

	_, err := r.db.Conn().Exec(fmt.Sprintf(`
		UPDATE jobs
		SET tiles_processed = tiles_processed + 1, %s = %s + 1
		WHERE id = ?
	`, column, column), id)
	if err != nil {
		return fmt.Errorf("failed to record tile result for job %s: %w", id, err)
	}
	return nil
}

// Latest returns the most recently started job, or nil when none exist.
func (r *JobRepository) Latest() (*models.Job, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var job models.Job
	var finished sql.NullTime
	err := r.db.Conn().QueryRow(`
		SELECT id, status, started_at, finished_at, tiles_processed, tiles_succeeded, tiles_failed, reason
		FROM jobs ORDER BY started_at DESC LIMIT 1
	`).Scan(&job.ID, &job.Status, &job.StartedAt, &finished,
		&job.TilesProcessed, &job.TilesSucceeded, &job.TilesFailed, &job.Reason)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest job: %w", err)
	}

	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}

	return &job, nil
}
