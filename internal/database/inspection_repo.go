package database

import (
	"database/sql"
	"fmt"

	"github.com/avdeyev/aeroinspect/internal/models"
)

type InspectionRepository struct {
	db *DB
}

func NewInspectionRepository(db *DB) *InspectionRepository {
	return &InspectionRepository{db: db}
}

func (r *InspectionRepository) Insert(ins *models.Inspection) error {
	query := `
	INSERT INTO inspections (id, filename, content_type, size, submitted_at,
		processing_time_ms, degraded, defect_count, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if r.db.dbType == "postgres" {
		query = `
	INSERT INTO inspections (id, filename, content_type, size, submitted_at,
		processing_time_ms, degraded, defect_count, result_json)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	}

	_, err := r.db.conn.Exec(query,
		ins.ID, ins.Filename, ins.ContentType, ins.Size, ins.SubmittedAt,
		ins.ProcessingTimeMs, ins.Degraded, ins.DefectCount, ins.ResultJSON)
	if err != nil {
		return fmt.Errorf("failed to insert inspection: %w", err)
	}
	return nil
}

func (r *InspectionRepository) GetByID(id string) (*models.Inspection, error) {
	query := `
	SELECT id, filename, content_type, size, submitted_at,
		processing_time_ms, degraded, defect_count, result_json
	FROM inspections WHERE id = ?`
	if r.db.dbType == "postgres" {
		query = `
	SELECT id, filename, content_type, size, submitted_at,
		processing_time_ms, degraded, defect_count, result_json
	FROM inspections WHERE id = $1`
	}

	var ins models.Inspection
	err := r.db.conn.QueryRow(query, id).Scan(
		&ins.ID, &ins.Filename, &ins.ContentType, &ins.Size, &ins.SubmittedAt,
		&ins.ProcessingTimeMs, &ins.Degraded, &ins.DefectCount, &ins.ResultJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inspection not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	return &ins, nil
}

func (r *InspectionRepository) List(limit int) ([]models.Inspection, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, filename, content_type, size, submitted_at,
		processing_time_ms, degraded, defect_count, result_json
	FROM inspections ORDER BY submitted_at DESC LIMIT ?`
	if r.db.dbType == "postgres" {
		query = `
	SELECT id, filename, content_type, size, submitted_at,
		processing_time_ms, degraded, defect_count, result_json
	FROM inspections ORDER BY submitted_at DESC LIMIT $1`
	}

	rows, err := r.db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var inspections []models.Inspection
	for rows.Next() {
		var ins models.Inspection
		if err := rows.Scan(
			&ins.ID, &ins.Filename, &ins.ContentType, &ins.Size, &ins.SubmittedAt,
			&ins.ProcessingTimeMs, &ins.Degraded, &ins.DefectCount, &ins.ResultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, ins)
	}

	return inspections, rows.Err()
}
