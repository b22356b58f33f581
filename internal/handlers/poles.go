package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"polescan/internal/dto"
	"polescan/internal/geo"
	"polescan/internal/logger"
	"polescan/internal/models"
	"polescan/internal/repository"
)

// DefaultPoleLimit caps a bbox query when no limit is given.
const DefaultPoleLimit = 1000

// ListPolesHandler returns aggregated poles, optionally restricted to a
// bounding box via ?bbox=minLon,minLat,maxLon,maxLat and filtered by
// ?min_confidence. Superseded poles are never returned.
func ListPolesHandler(poles repository.PoleRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		minConfidence := floatDefault(q.Get("min_confidence"), 0)
		limit := atoiDefault(q.Get("limit"), DefaultPoleLimit)

		var (
			results []models.Pole
			err     error
		)
		if raw := q.Get("bbox"); raw != "" {
			bbox, perr := parseBBox(raw)
			if perr != nil {
				http.Error(w, "Invalid bbox parameter: "+perr.Error(), http.StatusBadRequest)
				return
			}
			results, err = poles.ListInBBox(bbox, minConfidence, limit)
		} else {
			results, err = poles.ListActive()
		}
		if err != nil {
			logger.Error("Error listing poles: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := dto.PolesData{Poles: make([]dto.PoleInfo, 0, len(results))}
		for _, p := range results {
			if p.Confidence < minConfidence {
				continue
			}
			data.Poles = append(data.Poles, dto.PoleInfo{
				ID:             p.ID,
				Lat:            p.Lat,
				Lon:            p.Lon,
				Confidence:     p.Confidence,
				DetectionCount: p.DetectionCount,
			})
		}
		data.Length = len(data.Poles)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// PoleDetectionsHandler returns the contributing detections for one pole,
// the provenance behind an aggregated point.
func PoleDetectionsHandler(detections repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "Pole id parameter is required", http.StatusBadRequest)
			return
		}

		results, err := detections.GetByPoleID(id)
		if err != nil {
			logger.Error("Error listing detections for pole %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// parseBBox parses "minLon,minLat,maxLon,maxLat".
func parseBBox(raw string) (geo.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geo.BBox{}, strconv.ErrSyntax
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BBox{}, err
		}
		vals[i] = v
	}

	bbox := geo.BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if err := bbox.Validate(); err != nil {
		return geo.BBox{}, err
	}
	return bbox, nil
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func floatDefault(s string, def float64) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return def
}
