// Package onnx wraps the locally-loaded defect detection model. The ONNX
// session is initialized exactly once on first use and is read-only
// afterwards, so concurrent jobs share it without locking.
package onnx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Metadata describes the exported model: tensor shapes, class order and
// the square input size the image is resized to.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Detector runs the local object-detection model.
type Detector struct {
	ModelPath    string
	MetadataPath string
	Threshold    float64

	initOnce sync.Once
	initErr  error
	session  *ort.DynamicAdvancedSession
	meta     Metadata
}

// New returns an uninitialized detector; the model loads lazily on the
// first Detect call.
func New(modelPath, metadataPath string, threshold float64) *Detector {
	return &Detector{
		ModelPath:    modelPath,
		MetadataPath: metadataPath,
		Threshold:    threshold,
	}
}

func (d *Detector) init() error {
	d.initOnce.Do(func() {
		d.initErr = d.load()
	})
	return d.initErr
}

func (d *Detector) load() error {
	metaFile, err := os.ReadFile(d.MetadataPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(metaFile, &d.meta); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	if d.meta.ImageSize <= 0 {
		return fmt.Errorf("metadata image_size must be positive, got %d", d.meta.ImageSize)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(d.ModelPath,
		[]string{"images"}, []string{"output"}, nil)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	d.session = session

	log.Printf("[ONNX] Model loaded: %s (%d classes, input %dpx)",
		d.ModelPath, len(d.meta.Classes), d.meta.ImageSize)
	return nil
}

// Detect runs one inference pass. Failures come back in DetectionSet.Err;
// they are never propagated as pipeline-fatal from here.
func (d *Detector) Detect(ctx context.Context, imageData []byte, width, height int) defect.DetectionSet {
	start := time.Now()

	if err := d.init(); err != nil {
		return defect.DetectionSet{
			LatencyMs: time.Since(start).Milliseconds(),
			Err:       &defect.DetectorUnavailableError{Detector: "primary", Err: err},
		}
	}

	input, err := d.prepareInput(imageData)
	if err != nil {
		return defect.DetectionSet{
			LatencyMs: time.Since(start).Milliseconds(),
			Err:       &defect.DetectorUnavailableError{Detector: "primary", Err: err},
		}
	}

	raw, err := d.run(input)
	if err != nil {
		return defect.DetectionSet{
			LatencyMs: time.Since(start).Milliseconds(),
			Err:       &defect.DetectorUnavailableError{Detector: "primary", Err: err},
		}
	}

	detections := decodeDetections(raw, d.meta.Classes, width, height, d.Threshold)

	return defect.DetectionSet{
		Detections: detections,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
}

// run executes the graph with per-call tensors; ONNX runtime sessions are
// safe for concurrent Run calls, which keeps the shared handle lock-free.
func (d *Detector) run(input []float32) ([]float32, error) {
	inputShape := ort.NewShape(d.meta.InputShape...)
	inputTensor, err := ort.NewTensor(inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(d.meta.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := outputTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// prepareInput resizes the image to the model's square input and lays it
// out as normalized CHW float32.
func (d *Detector) prepareInput(imageData []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	size := uint(d.meta.ImageSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	input := make([]float32, 3*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*w + x
			input[idx] = float32(r) / 65535.0
			input[w*h+idx] = float32(g) / 65535.0
			input[2*w*h+idx] = float32(b) / 65535.0
		}
	}

	return input, nil
}

// Close releases the ONNX session. Safe to call on a never-initialized
// detector.
func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
		ort.DestroyEnvironment()
	}
}
