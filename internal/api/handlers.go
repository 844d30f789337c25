package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avdeyev/aeroinspect/internal/database"
	"github.com/avdeyev/aeroinspect/internal/defect"
	"github.com/avdeyev/aeroinspect/internal/models"
	"github.com/avdeyev/aeroinspect/internal/storage"
)

// Pipeline is the inference entry point the API depends on.
type Pipeline interface {
	Submit(ctx context.Context, image []byte) (*defect.EnsembleResult, error)
}

type App struct {
	Storage        storage.Storage
	DB             *database.DB
	InspectionRepo *database.InspectionRepository
	Pipeline       Pipeline
	MaxUploadSize  int64
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type inspectionResponse struct {
	ID               string             `json:"id"`
	Filename         string             `json:"filename"`
	SubmittedAt      string             `json:"submitted_at"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	Degraded         bool               `json:"degraded"`
	DefectCount      int                `json:"defect_count"`
	Defects          []defect.Detection `json:"defects"`
	Warnings         []string           `json:"warnings,omitempty"`
}

func (app *App) SubmitInspectionHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			writeError(w, http.StatusBadRequest, "only JPEG and PNG images are allowed")
			return
		}
		contentType = "image/jpeg"
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	result, err := app.Pipeline.Submit(r.Context(), data)
	if err != nil {
		var perr *defect.PreprocessingError
		switch {
		case errors.As(err, &perr):
			writeError(w, http.StatusUnprocessableEntity, perr.Error())
		case errors.Is(err, defect.ErrAllDetectorsUnavailable):
			writeError(w, http.StatusServiceUnavailable, "inference backends unavailable, try again later")
		default:
			log.Printf("[API] Inspection failed: %v", err)
			writeError(w, http.StatusInternalServerError, "inspection failed")
		}
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}

	saved, err := app.Storage.SaveFile(bytes.NewReader(data), storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	ins := models.NewInspection(header.Filename, contentType, header.Size, result, string(resultJSON))
	if err := app.InspectionRepo.Insert(ins); err != nil {
		app.Storage.DeleteFile(saved)
		writeError(w, http.StatusInternalServerError, "failed to save inspection record")
		return
	}

	writeJSON(w, http.StatusCreated, inspectionResponse{
		ID:               ins.ID,
		Filename:         ins.Filename,
		SubmittedAt:      ins.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"),
		ProcessingTimeMs: result.ProcessingTimeMs,
		Degraded:         result.Degraded,
		DefectCount:      len(result.Detections),
		Defects:          result.Detections,
		Warnings:         result.Warnings,
	})
}

func (app *App) ListInspectionsHandler(w http.ResponseWriter, r *http.Request) {
	inspections, err := app.InspectionRepo.List(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list inspections")
		return
	}

	type listItem struct {
		ID               string `json:"id"`
		Filename         string `json:"filename"`
		SubmittedAt      string `json:"submitted_at"`
		ProcessingTimeMs int64  `json:"processing_time_ms"`
		Degraded         bool   `json:"degraded"`
		DefectCount      int    `json:"defect_count"`
	}

	items := make([]listItem, 0, len(inspections))
	for _, ins := range inspections {
		items = append(items, listItem{
			ID:               ins.ID,
			Filename:         ins.Filename,
			SubmittedAt:      ins.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"),
			ProcessingTimeMs: ins.ProcessingTimeMs,
			Degraded:         ins.Degraded,
			DefectCount:      ins.DefectCount,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"inspections": items})
}

func (app *App) GetInspectionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	ins, err := app.InspectionRepo.GetByID(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var result defect.EnsembleResult
	if err := json.Unmarshal([]byte(ins.ResultJSON), &result); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt inspection record")
		return
	}

	writeJSON(w, http.StatusOK, inspectionResponse{
		ID:               ins.ID,
		Filename:         ins.Filename,
		SubmittedAt:      ins.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"),
		ProcessingTimeMs: ins.ProcessingTimeMs,
		Degraded:         ins.Degraded,
		DefectCount:      ins.DefectCount,
		Defects:          result.Detections,
		Warnings:         result.Warnings,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
