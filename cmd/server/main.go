package main

import (
	"log"
	"net/http"

	"github.com/avdeyev/aeroinspect/internal/api"
	"github.com/avdeyev/aeroinspect/internal/config"
	"github.com/avdeyev/aeroinspect/internal/database"
	"github.com/avdeyev/aeroinspect/internal/detector/onnx"
	"github.com/avdeyev/aeroinspect/internal/detector/vlm"
	"github.com/avdeyev/aeroinspect/internal/ensemble"
	"github.com/avdeyev/aeroinspect/internal/pipeline"
	"github.com/avdeyev/aeroinspect/internal/preprocess"
	"github.com/avdeyev/aeroinspect/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	localStorage, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	inspectionRepo := database.NewInspectionRepository(db)

	primary := onnx.New(cfg.ONNXModelPath, cfg.ONNXMetadataPath, cfg.ONNXThreshold)
	defer primary.Close()

	if cfg.VLMAPIKey == "" {
		log.Printf("VLM_API_KEY not set; secondary detector will report unavailable")
	}
	secondary := vlm.NewClient(cfg.VLMEndpoint, cfg.VLMAPIKey, cfg.VLMModel, cfg.VLMCallTimeout, vlm.DefaultRetryPolicy())

	aggregator, err := ensemble.New(cfg.Ensemble)
	if err != nil {
		log.Fatal("Failed to initialize ensemble:", err)
	}

	svc := pipeline.NewService(preprocess.New(), primary, secondary, aggregator, pipeline.NewGovernor(cfg.MaxConcurrentJobs))
	svc.JobTimeout = cfg.JobTimeout

	app := &api.App{
		Storage:        localStorage,
		DB:             db,
		InspectionRepo: inspectionRepo,
		Pipeline:       svc,
		MaxUploadSize:  cfg.MaxUploadSize,
	}

	router := api.NewRouter(app)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Upload directory: %s", cfg.UploadDir)
	log.Printf("Database type: %s", cfg.Database.Type)
	if cfg.Database.Type == "postgres" {
		log.Printf("Database connection: %s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	} else {
		log.Printf("Database path: %s", cfg.Database.SQLitePath)
	}
	log.Printf("Primary model: %s (threshold %.2f)", cfg.ONNXModelPath, cfg.ONNXThreshold)
	log.Printf("Secondary model: %s via %s", cfg.VLMModel, cfg.VLMEndpoint)
	log.Printf("Max concurrent jobs: %d, job timeout: %s", cfg.MaxConcurrentJobs, cfg.JobTimeout)

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
