package sqlite

import (
	"fmt"

	"polescan/internal/models"
)

// TileRepository implements repository.TileRepository for SQLite.
type TileRepository struct {
	db *DB
}

// NewTileRepository creates a new SQLite tile repository.
func NewTileRepository(db *DB) *TileRepository {
	return &TileRepository{db: db}
}

// BulkInsert adds grid tiles as Pending in a single transaction. Existing
// grid cells are skipped so gridgen can be re-run safely.
func (r *TileRepository) BulkInsert(tiles []models.Tile) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO tiles (grid_row, grid_col, min_lon, min_lat, max_lon, max_lat, status)
		VALUES (?, ?, ?, ?, ?, ?, 'pending')
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range tiles {
		result, err := stmt.Exec(t.Row, t.Col, t.MinLon, t.MinLat, t.MaxLon, t.MaxLat)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert tile (%d,%d): %w", t.Row, t.Col, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// ListEligible returns Pending tiles and Failed tiles that still have
// retry budget for their recorded failure kind. Persistence failures
// retry on the no-imagery budget: the tile itself is fine, the store was
// not.
func (r *TileRepository) ListEligible(noImageryMax, inferenceMax, limit int) ([]models.Tile, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, grid_row, grid_col, min_lon, min_lat, max_lon, max_lat, status, attempts, last_error, error_kind, updated_at
		FROM tiles
		WHERE status = 'pending'
		   OR (status = 'failed' AND (
		       (error_kind = ? AND attempts < ?) OR
		       (error_kind = ? AND attempts < ?) OR
		       (error_kind = ? AND attempts < ?)
		   ))
		ORDER BY grid_row, grid_col
	`
	args := []interface{}{
		models.FailureNoImagery, noImageryMax,
		models.FailureInference, inferenceMax,
		models.FailurePersistence, noImageryMax,
	}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible tiles: %w", err)
	}
	defer rows.Close()

	var tiles []models.Tile
	for rows.Next() {
		var t models.Tile
		if err := rows.Scan(&t.ID, &t.Row, &t.Col, &t.MinLon, &t.MinLat, &t.MaxLon, &t.MaxLat,
			&t.Status, &t.Attempts, &t.LastError, &t.ErrorKind, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, t)
	}

	return tiles, nil
}

// Claim is the atomic Pending/Failed -> Processing transition. The
// conditional update compares status and attempt count so two workers
// racing for the same tile cannot both win. Returns false on a lost race.
func (r *TileRepository) Claim(tile *models.Tile) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE tiles
		SET status = 'processing', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND attempts = ? AND status IN ('pending', 'failed')
	`, tile.ID, tile.Attempts)
	if err != nil {
		return false, fmt.Errorf("failed to claim tile %d: %w", tile.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	tile.Status = models.TileStatusProcessing
	tile.Attempts++
	return true, nil
}

// MarkDone moves a Processing tile to Done.
func (r *TileRepository) MarkDone(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE tiles
		SET status = 'done', last_error = '', error_kind = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'processing'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark tile %d done: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("tile %d was not in processing state", id)
	}
	return nil
}

// MarkFailed moves a Processing tile to Failed and records the failure
// kind so the retry budget can be applied on the next run.
func (r *TileRepository) MarkFailed(id int64, kind, reason string) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE tiles
		SET status = 'failed', last_error = ?, error_kind = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'processing'
	`, reason, kind, id)
	if err != nil {
		return fmt.Errorf("failed to mark tile %d failed: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("tile %d was not in processing state", id)
	}
	return nil
}

// ResetAll returns every tile to Pending in one statement. This is the
// administrative override; it deliberately skips per-row state checks.
func (r *TileRepository) ResetAll() (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE tiles
		SET status = 'pending', attempts = 0, last_error = '', error_kind = '', updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset tiles: %w", err)
	}

	return result.RowsAffected()
}

// Counts returns tile totals per status.
func (r *TileRepository) Counts() (models.TileCounts, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT status, COUNT(*) FROM tiles GROUP BY status`)
	if err != nil {
		return models.TileCounts{}, fmt.Errorf("failed to count tiles: %w", err)
	}
	defer rows.Close()

	var counts models.TileCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.TileCounts{}, fmt.Errorf("failed to scan count: %w", err)
		}
		counts.Total += n
		switch models.TileStatus(status) {
		case models.TileStatusPending:
			counts.Pending = n
		case models.TileStatusProcessing:
			counts.Processing = n
		case models.TileStatusDone:
			counts.Done = n
		case models.TileStatusFailed:
			counts.Failed = n
		}
	}

	return counts, nil
}
