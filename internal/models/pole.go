package models

import "time"

// Pole is a deduplicated, canonical real-world pole aggregated from one
// or more detections. Its identity is stable across pipeline runs.
type Pole struct {
	ID             int64     `json:"id"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	Confidence     float64   `json:"confidence"`
	DetectionCount int       `json:"detection_count"`
	Superseded     bool      `json:"superseded"`
	UpdatedAt      time.Time `json:"updated_at"`
}
