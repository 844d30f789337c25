package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./aeroinspect.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	fmt.Println("🔍 Checking Detector Configuration & Results")
	fmt.Println("============================================")

	modelPath := os.Getenv("ONNX_MODEL_PATH")
	if modelPath == "" {
		modelPath = "./models/defect_yolo.onnx"
	}
	if _, err := os.Stat(modelPath); err != nil {
		fmt.Printf("⚠️  Primary model: NOT FOUND at %s\n", modelPath)
	} else {
		fmt.Printf("✅ Primary model: %s\n", modelPath)
	}

	vlmKey := os.Getenv("VLM_API_KEY")
	if vlmKey == "" {
		fmt.Println("⚠️  Secondary detector: VLM_API_KEY not set")
	} else {
		fmt.Println("✅ Secondary detector: API key configured")
	}
	fmt.Println()

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM inspections").Scan(&total); err != nil {
		fmt.Println("❌ No inspections table found (server not yet run)")
		return
	}
	fmt.Printf("🛩️  Total inspections: %d\n", total)

	var degraded int
	if err := db.QueryRow("SELECT COUNT(*) FROM inspections WHERE degraded").Scan(&degraded); err == nil {
		fmt.Printf("⚠️  Degraded (single-detector) runs: %d\n\n", degraded)
	}

	rows, err := db.Query(`
		SELECT filename, submitted_at, processing_time_ms, degraded, defect_count, result_json
		FROM inspections
		ORDER BY submitted_at DESC
		LIMIT 5
	`)
	if err != nil {
		log.Fatal("Failed to query inspections:", err)
	}
	defer rows.Close()

	fmt.Println("📊 Recent Inspections:")
	fmt.Println("---------------------")

	count := 0
	for rows.Next() {
		var filename, submittedAt, resultJSON string
		var processingMs int64
		var isDegraded bool
		var defectCount int

		if err := rows.Scan(&filename, &submittedAt, &processingMs, &isDegraded, &defectCount, &resultJSON); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		count++
		fmt.Printf("\n🖼️  %s (%s)\n", filename, submittedAt)
		fmt.Printf("   ⏱️  %d ms", processingMs)
		if isDegraded {
			fmt.Print(" [degraded]")
		}
		fmt.Println()

		var result struct {
			Defects []struct {
				Class      string  `json:"class"`
				Confidence float64 `json:"confidence"`
				Source     string  `json:"source"`
			} `json:"defects"`
		}
		if err := json.Unmarshal([]byte(resultJSON), &result); err == nil && len(result.Defects) > 0 {
			fmt.Printf("   🔧 Defects: ")
			for i, d := range result.Defects {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Printf("%s (%.2f, %s)", d.Class, d.Confidence, d.Source)
				if i >= 2 {
					fmt.Print("...")
					break
				}
			}
			fmt.Println()
		} else if defectCount == 0 {
			fmt.Println("   ✨ No defects found")
		}
	}

	if count == 0 {
		fmt.Println("No inspections found yet. Submit an image to test!")
	} else {
		fmt.Printf("\n✅ Pipeline is working! Found %d recent inspections.\n", count)
	}
}
