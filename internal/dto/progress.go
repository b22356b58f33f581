package dto

// ProgressEvent is broadcast to websocket viewers as tiles resolve.
type ProgressEvent struct {
	JobID      string `json:"job_id"`
	TileID     int64  `json:"tile_id"`
	TileStatus string `json:"tile_status"`
	Provider   string `json:"provider,omitempty"`
	Detections int    `json:"detections"`
	Processed  int    `json:"tiles_processed"`
	Succeeded  int    `json:"tiles_succeeded"`
	Failed     int    `json:"tiles_failed"`
	Total      int    `json:"tiles_total"`
}
