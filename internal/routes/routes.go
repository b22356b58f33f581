package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"polescan/internal/config"
	"polescan/internal/handlers"
	"polescan/internal/logger"
	"polescan/internal/middleware"
	"polescan/internal/pipeline"
	"polescan/internal/repository"
	"polescan/internal/services/websocket"
)

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", path+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(runner *pipeline.Runner, poles repository.PoleRepository, detections repository.DetectionRepository,
	hub *websocket.HubService, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Pipeline endpoints
	mux.HandleFunc("/api/pipeline/status", handlers.PipelineStatusHandler(runner, logger))
	mux.HandleFunc("/api/pipeline/run", handlers.RunPipelineHandler(runner, logger))
	mux.HandleFunc("/api/pipeline/cancel", handlers.CancelPipelineHandler(runner, logger))
	mux.HandleFunc("/api/tiles/reset", handlers.ResetTilesHandler(runner, logger))

	// Result endpoints
	mux.HandleFunc("/api/poles", handlers.ListPolesHandler(poles, logger))
	mux.HandleFunc("/api/poles/detections", handlers.PoleDetectionsHandler(detections, logger))

	// Live progress stream
	mux.HandleFunc("/api/progress", handlers.ProgressWebsocketHandler(hub, logger))

	// Log endpoints
	mux.HandleFunc("/logs/info", handlers.ShowLogsHandler(cfg, "info.log"))
	mux.HandleFunc("/logs/warning", handlers.ShowLogsHandler(cfg, "warning.log"))
	mux.HandleFunc("/logs/error", handlers.ShowLogsHandler(cfg, "error.log"))

	mux.HandleFunc("/logs/info/clear", handlers.ClearLogsHandler(logger, "info.log"))
	mux.HandleFunc("/logs/warning/clear", handlers.ClearLogsHandler(logger, "warning.log"))
	mux.HandleFunc("/logs/error/clear", handlers.ClearLogsHandler(logger, "error.log"))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handlers.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handlers.LogoutHandler)

	// Automatic HTML handler mapping for example: /map -> /static/map.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	// Apply middleware
	return middleware.AuthMiddleware(mux, cfg)
}
