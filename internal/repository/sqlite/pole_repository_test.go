package sqlite

import (
	"testing"

	"polescan/internal/geo"
	"polescan/internal/models"
)

func insertPole(t *testing.T, repo *PoleRepository, lat, lon, confidence float64) int64 {
	t.Helper()

	id, err := repo.Insert(&models.Pole{Lat: lat, Lon: lon, Confidence: confidence, DetectionCount: 1})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return id
}

func TestPoleRepository_ListInBBox(t *testing.T) {
	repo := NewPoleRepository(newTestDB(t))

	inside := insertPole(t, repo, 40.3685, -76.7155, 0.9)
	insertPole(t, repo, 40.5, -76.7155, 0.9)    // north of the box
	insertPole(t, repo, 40.3685, -76.9, 0.9)    // west of the box
	lowConf := insertPole(t, repo, 40.3686, -76.7156, 0.3)

	bbox := geo.BBox{MinLon: -76.72, MinLat: 40.36, MaxLon: -76.71, MaxLat: 40.37}

	poles, err := repo.ListInBBox(bbox, 0.5, 0)
	if err != nil {
		t.Fatalf("ListInBBox failed: %v", err)
	}
	if len(poles) != 1 || poles[0].ID != inside {
		t.Fatalf("expected only pole %d, got %+v", inside, poles)
	}

	// Dropping the confidence floor brings the weak pole back.
	poles, err = repo.ListInBBox(bbox, 0, 0)
	if err != nil {
		t.Fatalf("ListInBBox failed: %v", err)
	}
	if len(poles) != 2 {
		t.Fatalf("expected 2 poles without floor, got %d", len(poles))
	}
	// Ordered by confidence, strongest first.
	if poles[0].ID != inside || poles[1].ID != lowConf {
		t.Errorf("unexpected order: %+v", poles)
	}
}

func TestPoleRepository_UpdateRewritesAggregate(t *testing.T) {
	repo := NewPoleRepository(newTestDB(t))

	id := insertPole(t, repo, 40.3685, -76.7155, 0.6)

	updated := &models.Pole{ID: id, Lat: 40.36851, Lon: -76.71551, Confidence: 0.8, DetectionCount: 2}
	if err := repo.Update(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	poles, err := repo.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(poles) != 1 {
		t.Fatalf("expected 1 pole, got %d", len(poles))
	}
	p := poles[0]
	if p.Confidence != 0.8 || p.DetectionCount != 2 || p.Lat != 40.36851 {
		t.Errorf("update not applied: %+v", p)
	}
}

func TestPoleRepository_SupersededExcludedNotDeleted(t *testing.T) {
	repo := NewPoleRepository(newTestDB(t))

	keep := insertPole(t, repo, 40.3685, -76.7155, 0.9)
	gone := insertPole(t, repo, 40.3695, -76.7155, 0.7)

	if err := repo.MarkSuperseded(gone); err != nil {
		t.Fatalf("MarkSuperseded failed: %v", err)
	}

	active, err := repo.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != keep {
		t.Errorf("expected only pole %d active, got %+v", keep, active)
	}

	bbox := geo.BBox{MinLon: -76.72, MinLat: 40.36, MaxLon: -76.71, MaxLat: 40.38}
	inBox, err := repo.ListInBBox(bbox, 0, 0)
	if err != nil {
		t.Fatalf("ListInBBox failed: %v", err)
	}
	if len(inBox) != 1 {
		t.Errorf("superseded pole leaked into bbox listing: %+v", inBox)
	}
}

func TestDetectionRepository_DedupKeyUnique(t *testing.T) {
	db := newTestDB(t)
	poles := NewPoleRepository(db)
	detections := NewDetectionRepository(db)
	tiles := NewTileRepository(db)

	seeded := seedTiles(t, tiles, 1)
	poleID := insertPole(t, poles, 40.3685, -76.7155, 0.9)

	det := &models.Detection{
		TileID: seeded[0].ID, PoleID: poleID,
		Class: "pole", Confidence: 0.9,
		X1: 10, Y1: 20, X2: 30, Y2: 40,
		Lat: 40.3685, Lon: -76.7155,
		DedupKey: "k1",
	}
	if _, err := detections.Insert(det); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// The unique constraint is the durable backstop against re-counting.
	if _, err := detections.Insert(det); err == nil {
		t.Error("expected unique constraint violation on duplicate dedup key")
	}

	byPole, err := detections.GetByPoleID(poleID)
	if err != nil {
		t.Fatalf("GetByPoleID failed: %v", err)
	}
	if len(byPole) != 1 || byPole[0].DedupKey != "k1" {
		t.Errorf("unexpected detections: %+v", byPole)
	}

	all, err := detections.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 stored detection, got %d", len(all))
	}
}
