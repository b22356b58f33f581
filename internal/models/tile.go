package models

import "time"

// TileStatus is the processing state of a grid tile.
type TileStatus string

const (
	TileStatusPending    TileStatus = "pending"
	TileStatusProcessing TileStatus = "processing"
	TileStatusDone       TileStatus = "done"
	TileStatusFailed     TileStatus = "failed"
)

// Failure kinds recorded on a failed tile. The retry budget depends on
// which stage failed, so the kind has to be persisted alongside the status.
const (
	FailureNoImagery   = "no_imagery"
	FailureInference   = "inference"
	FailurePersistence = "persistence"
)

// Tile is one fixed-size cell of the AOI processing grid.
type Tile struct {
	ID        int64      `json:"id"`
	Row       int        `json:"row"`
	Col       int        `json:"col"`
	MinLon    float64    `json:"min_lon"`
	MinLat    float64    `json:"min_lat"`
	MaxLon    float64    `json:"max_lon"`
	MaxLat    float64    `json:"max_lat"`
	Status    TileStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	ErrorKind string     `json:"error_kind,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TileCounts summarizes grid state for status reporting.
type TileCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}
