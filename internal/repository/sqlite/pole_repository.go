package sqlite

import (
	"fmt"

	"polescan/internal/geo"
	"polescan/internal/models"
)

// PoleRepository implements repository.PoleRepository for SQLite.
type PoleRepository struct {
	db *DB
}

// NewPoleRepository creates a new SQLite pole repository.
func NewPoleRepository(db *DB) *PoleRepository {
	return &PoleRepository{db: db}
}

// Insert adds a new pole record.
func (r *PoleRepository) Insert(pole *models.Pole) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO poles (lat, lon, confidence, detection_count)
		VALUES (?, ?, ?, ?)
	`, pole.Lat, pole.Lon, pole.Confidence, pole.DetectionCount)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pole: %w", err)
	}

	return result.LastInsertId()
}

// Update rewrites location, confidence and contribution count after a merge.
func (r *PoleRepository) Update(pole *models.Pole) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		UPDATE poles
		SET lat = ?, lon = ?, confidence = ?, detection_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, pole.Lat, pole.Lon, pole.Confidence, pole.DetectionCount, pole.ID)
	if err != nil {
		return fmt.Errorf("failed to update pole %d: %w", pole.ID, err)
	}
	return nil
}

// ListActive returns all non-superseded poles.
func (r *PoleRepository) ListActive() ([]models.Pole, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, lat, lon, confidence, detection_count, superseded, updated_at
		FROM poles WHERE superseded = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query poles: %w", err)
	}
	defer rows.Close()

	return scanPoles(rows)
}

// ListInBBox returns non-superseded poles inside a bounding box at or
// above a confidence floor.
func (r *PoleRepository) ListInBBox(bbox geo.BBox, minConfidence float64, limit int) ([]models.Pole, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, lat, lon, confidence, detection_count, superseded, updated_at
		FROM poles
		WHERE superseded = 0
		  AND lat BETWEEN ? AND ?
		  AND lon BETWEEN ? AND ?
		  AND confidence >= ?
		ORDER BY confidence DESC
	`
	args := []interface{}{bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon, minConfidence}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query poles in bbox: %w", err)
	}
	defer rows.Close()

	return scanPoles(rows)
}

// MarkSuperseded flags a pole without deleting it, preserving auditability.
func (r *PoleRepository) MarkSuperseded(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		UPDATE poles SET superseded = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark pole %d superseded: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
}

func scanPoles(rows rowScanner) ([]models.Pole, error) {
	var poles []models.Pole
	for rows.Next() {
		var p models.Pole
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lon, &p.Confidence, &p.DetectionCount, &p.Superseded, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pole: %w", err)
		}
		poles = append(poles, p)
	}
	return poles, nil
}
