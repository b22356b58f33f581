package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"polescan/internal/logger"
	"polescan/internal/pipeline"
	"polescan/internal/repository"
)

// PipelineStatusHandler reports the latest job and tile counts.
func PipelineStatusHandler(runner *pipeline.Runner, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := runner.Status()
		if err != nil {
			logger.Error("Error reading pipeline status: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// RunPipelineHandler starts a job. A second trigger while one is running
// returns 409 with the conflict reason rather than starting a second run.
func RunPipelineHandler(runner *pipeline.Runner, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		jobID, err := runner.Trigger()
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyRunning) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			logger.Error("Error triggering pipeline: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		status, err := runner.Status()
		if err != nil {
			logger.Error("Error reading status for job %s: %v", jobID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// CancelPipelineHandler stops the running job.
func CancelPipelineHandler(runner *pipeline.Runner, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := runner.Cancel(); err != nil {
			if errors.Is(err, pipeline.ErrNotRunning) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			logger.Error("Error canceling pipeline: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Pipeline cancellation requested")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "canceling"})
	}
}

// ResetTilesHandler returns the whole grid to pending. Rejected with 409
// while a job is running.
func ResetTilesHandler(runner *pipeline.Runner, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		n, err := runner.ResetTiles()
		if err != nil {
			if errors.Is(err, pipeline.ErrJobRunning) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			logger.Error("Error resetting tiles: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"reset": n})
	}
}
