package sqlite

import (
	"fmt"

	"polescan/internal/models"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// Insert adds a detection record. The unique dedup key constraint is the
// durable backstop against double-counting on tile retries.
func (r *DetectionRepository) Insert(det *models.Detection) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO detections (tile_id, pole_id, class, confidence, x1, y1, x2, y2, lat, lon, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, det.TileID, det.PoleID, det.Class, det.Confidence,
		det.X1, det.Y1, det.X2, det.Y2, det.Lat, det.Lon, det.DedupKey)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	return result.LastInsertId()
}

// All returns every stored detection. Loaded once when the aggregator
// starts to rebuild its dedup set and per-pole centroid sums.
func (r *DetectionRepository) All() ([]models.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, tile_id, pole_id, class, confidence, x1, y1, x2, y2, lat, lon, dedup_key
		FROM detections
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []models.Detection
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ID, &d.TileID, &d.PoleID, &d.Class, &d.Confidence,
			&d.X1, &d.Y1, &d.X2, &d.Y2, &d.Lat, &d.Lon, &d.DedupKey); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}

	return detections, nil
}

// GetByPoleID returns the contributing detections for a pole.
func (r *DetectionRepository) GetByPoleID(poleID int64) ([]models.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, tile_id, pole_id, class, confidence, x1, y1, x2, y2, lat, lon, dedup_key
		FROM detections WHERE pole_id = ?
	`, poleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []models.Detection
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ID, &d.TileID, &d.PoleID, &d.Class, &d.Confidence,
			&d.X1, &d.Y1, &d.X2, &d.Y2, &d.Lat, &d.Lon, &d.DedupKey); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}

	return detections, nil
}
