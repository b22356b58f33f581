package dto

// PoleInfo is the API shape for a single aggregated pole.
type PoleInfo struct {
	ID             int64   `json:"id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Confidence     float64 `json:"confidence"`
	DetectionCount int     `json:"detection_count"`
}

// PolesData is the paginated pole listing response.
type PolesData struct {
	Poles  []PoleInfo `json:"poles"`
	Length int        `json:"length"`
}
