package models

import "time"

// JobStatus is the lifecycle state of one pipeline run.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job records one invocation of the full pipeline.
type Job struct {
	ID             string     `json:"id"`
	Status         JobStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	TilesProcessed int        `json:"tiles_processed"`
	TilesSucceeded int        `json:"tiles_succeeded"`
	TilesFailed    int        `json:"tiles_failed"`
	Reason         string     `json:"reason,omitempty"`
}
