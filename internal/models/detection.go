package models

// Detection is a single raw model output for one tile, kept as provenance
// for the pole it contributed to.
type Detection struct {
	ID         int64   `json:"id"`
	TileID     int64   `json:"tile_id"`
	PoleID     int64   `json:"pole_id"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	// DedupKey is stable across re-runs of the same tile: tile id + pixel
	// bbox + class. An identical detection offered twice is dropped.
	DedupKey string `json:"dedup_key"`
}
