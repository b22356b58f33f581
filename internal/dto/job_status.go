package dto

import (
	"encoding/json"
	"time"

	"polescan/internal/models"
)

// JobStatusData is the pipeline status snapshot returned by the API.
type JobStatusData struct {
	JobID      string            `json:"job_id"`
	Status     models.JobStatus  `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Processed  int               `json:"tiles_processed"`
	Succeeded  int               `json:"tiles_succeeded"`
	Failed     int               `json:"tiles_failed"`
	Reason     string            `json:"reason,omitempty"`
	Tiles      models.TileCounts `json:"tiles"`
}

// MarshalJSON formats timestamps as RFC3339 without sub-second noise.
func (j JobStatusData) MarshalJSON() ([]byte, error) {
	type Alias JobStatusData
	var finished *string
	if j.FinishedAt != nil {
		s := j.FinishedAt.UTC().Format(time.RFC3339)
		finished = &s
	}
	return json.Marshal(&struct {
		StartedAt  string  `json:"started_at"`
		FinishedAt *string `json:"finished_at,omitempty"`
		Alias
	}{
		StartedAt:  j.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: finished,
		Alias:      (Alias)(j),
	})
}

// FromJob builds a snapshot from a job record and current tile counts.
func FromJob(job *models.Job, counts models.TileCounts) JobStatusData {
	if job == nil {
		return JobStatusData{Status: "idle", Tiles: counts}
	}
	return JobStatusData{
		JobID:      job.ID,
		Status:     job.Status,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		Processed:  job.TilesProcessed,
		Succeeded:  job.TilesSucceeded,
		Failed:     job.TilesFailed,
		Reason:     job.Reason,
		Tiles:      counts,
	}
}
