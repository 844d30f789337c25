package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/avdeyev/aeroinspect/internal/database"
	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Config carries everything the server needs from the environment.
// A .env file in the working directory is honored when present.
type Config struct {
	Port          string
	UploadDir     string
	MaxUploadSize int64

	Database database.Config

	// Primary detector (local model file).
	ONNXModelPath    string
	ONNXMetadataPath string
	ONNXThreshold    float64

	// Secondary detector (OpenAI-compatible vision endpoint).
	VLMEndpoint    string
	VLMAPIKey      string
	VLMModel       string
	VLMCallTimeout time.Duration

	Ensemble defect.EnsembleConfig

	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		UploadDir:        getEnv("UPLOAD_DIR", "./uploads"),
		ONNXModelPath:    getEnv("ONNX_MODEL_PATH", "./models/defect_yolo.onnx"),
		ONNXMetadataPath: getEnv("ONNX_METADATA_PATH", "./models/defect_yolo.json"),
		VLMEndpoint:      getEnv("VLM_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		VLMAPIKey:        os.Getenv("VLM_API_KEY"),
		VLMModel:         getEnv("VLM_MODEL", "gpt-4o"),
		Ensemble:         defect.DefaultEnsembleConfig(),
	}

	var err error
	if cfg.MaxUploadSize, err = getEnvInt64("MAX_UPLOAD_SIZE", 20971520); err != nil {
		return nil, err
	}
	if cfg.ONNXThreshold, err = getEnvFloat("ONNX_THRESHOLD", 0.25); err != nil {
		return nil, err
	}
	if cfg.VLMCallTimeout, err = getEnvDuration("VLM_CALL_TIMEOUT", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentJobs, err = getEnvInt("MAX_CONCURRENT_JOBS", 5); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.Ensemble.PrimaryWeight, err = getEnvFloat("ENSEMBLE_PRIMARY_WEIGHT", cfg.Ensemble.PrimaryWeight); err != nil {
		return nil, err
	}
	if cfg.Ensemble.SecondaryWeight, err = getEnvFloat("ENSEMBLE_SECONDARY_WEIGHT", cfg.Ensemble.SecondaryWeight); err != nil {
		return nil, err
	}
	if err := cfg.Ensemble.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ensemble configuration: %w", err)
	}

	cfg.Database.Type = getEnv("DB_TYPE", "sqlite")
	if cfg.Database.Type == "postgres" {
		cfg.Database.Host = getEnv("DB_HOST", "localhost")
		if cfg.Database.Port, err = getEnvInt("DB_PORT", 5432); err != nil {
			return nil, err
		}
		cfg.Database.User = getEnv("DB_USER", "aeroinspect")
		cfg.Database.Password = getEnv("DB_PASSWORD", "aeroinspect_dev")
		cfg.Database.Name = getEnv("DB_NAME", "aeroinspect")
	} else {
		cfg.Database.SQLitePath = getEnv("DB_PATH", "./aeroinspect.db")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
