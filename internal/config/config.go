package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ProviderConfig describes a single ranked WMS imagery endpoint.
type ProviderConfig struct {
	Name    string
	BaseURL string
	Service string
	Version string
	Layer   string
	Format  string
	CRS     string
}

type Config struct {
	Port     int
	Password string
	APIKey   string

	DBPath       string
	LogDirectory string

	ModelPath           string
	ModelConfigPath     string
	ConfidenceThreshold float64
	TargetClass         string

	Providers       []ProviderConfig
	ProviderTimeout int // seconds, per provider request
	TileSizePx      int

	PipelineWorkers      int
	FailureThreshold     float64 // fraction of failed tiles that fails the job
	NoImageryMaxAttempts int     // retry budget when all providers are exhausted
	InferenceMaxAttempts int     // retry budget for model failures

	MergeRadiusMeters float64
	BucketSizeDeg     float64 // must stay larger than the merge radius in degrees

	SnapshotDirectory     string
	SnapshotBufferLimit   int
	SnapshotFlushInterval int // seconds
	SaveSnapshots         bool
}

func Load() *Config {
	// .env is optional, real deployments use process env
	_ = godotenv.Load()

	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		Password: getEnv("PASSWORD", "changeme"),
		APIKey:   getEnv("API_KEY", ""),

		DBPath:       getEnv("DB_PATH", filepath.Join("data", "polescan.db")),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),

		ModelPath:           getEnv("MODEL_PATH", filepath.Join("models", "pole_detector.onnx")),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", ""),
		ConfidenceThreshold: getEnvAsFloat("CONF_THRESHOLD", 0.5),
		TargetClass:         getEnv("TARGET_CLASS", "pole"),

		Providers:       parseProviders(getEnv("WMS_PROVIDERS", defaultProviders)),
		ProviderTimeout: getEnvAsInt("PROVIDER_TIMEOUT", 5),
		TileSizePx:      getEnvAsInt("TILE_SIZE_PX", 640),

		PipelineWorkers:      getEnvAsInt("PIPELINE_WORKERS", 4),
		FailureThreshold:     getEnvAsFloat("FAILURE_THRESHOLD", 0.5),
		NoImageryMaxAttempts: getEnvAsInt("NO_IMAGERY_MAX_ATTEMPTS", 3),
		InferenceMaxAttempts: getEnvAsInt("INFERENCE_MAX_ATTEMPTS", 2),

		MergeRadiusMeters: getEnvAsFloat("MERGE_RADIUS_M", 8.0),
		BucketSizeDeg:     getEnvAsFloat("BUCKET_SIZE_DEG", 0.0002),

		SnapshotDirectory:     getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		SnapshotBufferLimit:   getEnvAsInt("SNAPSHOT_BUFFER_LIMIT", 20),
		SnapshotFlushInterval: getEnvAsInt("SNAPSHOT_FLUSH_INTERVAL", 30),
		SaveSnapshots:         getEnvAsBool("SAVE_SNAPSHOTS", true),
	}
}

// defaultProviders is the ranked fallback chain used when WMS_PROVIDERS is unset.
// Entry format: name|baseURL|layer|format|version|crs, entries separated by ';'.
const defaultProviders = "usgs|https://basemap.nationalmap.gov/arcgis/services/USGSImageryOnly/MapServer/WMSServer|0|image/png|1.3.0|CRS:84;" +
	"pasda|https://imagery.pasda.psu.edu/arcgis/services/pasda/PEMAImagery2018_2020/MapServer/WMSServer|0|image/png|1.3.0|CRS:84"

func parseProviders(raw string) []ProviderConfig {
	var providers []ProviderConfig
	for _, entry := range strings.Split(raw, ";") {
		parts := strings.Split(strings.TrimSpace(entry), "|")
		if len(parts) != 6 {
			continue
		}
		providers = append(providers, ProviderConfig{
			Name:    parts[0],
			BaseURL: parts[1],
			Service: "WMS",
			Layer:   parts[2],
			Format:  parts[3],
			Version: parts[4],
			CRS:     parts[5],
		})
	}
	return providers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
