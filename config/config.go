package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// Server
	ServerPort string

	// Database. Empty disables the history subsystem.
	DatabaseURL string

	// Cell profile YAML. Empty uses the factory defaults.
	ProfilePath string

	// Local artifact storage root.
	StorageRoot string

	// Vision backend: "dnn" loads the model bundles, "sim" runs scripted
	// detections for bench use.
	VisionBackend  string
	TopModelDir    string
	FrontModelDir  string
	DefectModelDir string

	// S3 archival. Empty bucket disables archiving.
	S3Bucket string
	S3Prefix string
}

// Load loads configuration from the environment, with .env as fallback.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ProfilePath:    getEnv("PROFILE_PATH", ""),
		StorageRoot:    getEnv("STORAGE_ROOT", "./data"),
		VisionBackend:  getEnv("VISION_BACKEND", "sim"),
		TopModelDir:    getEnv("TOP_MODEL_DIR", "./models/top"),
		FrontModelDir:  getEnv("FRONT_MODEL_DIR", "./models/front"),
		DefectModelDir: getEnv("DEFECT_MODEL_DIR", "./models/defect"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Prefix:       getEnv("S3_PREFIX", "inspections"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
