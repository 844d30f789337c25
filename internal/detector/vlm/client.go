// Package vlm wraps the remote vision-language defect detector. Calls go
// to an OpenAI-compatible chat completions endpoint with the image
// embedded as a base64 data URL; transient failures are retried with
// exponential backoff under an explicit RetryPolicy.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

const defaultModel = "gpt-4o"

// Client talks to the remote detector endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	policy     RetryPolicy
	httpClient *http.Client
}

// NewClient builds a client with a hard per-call timeout.
func NewClient(endpoint, apiKey, model string, callTimeout time.Duration, policy RetryPolicy) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		policy:   policy,
		httpClient: &http.Client{
			Timeout: callTimeout,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// permanentError marks failures that retrying cannot fix (4xx, auth).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Detect asks the remote model for defect detections, retrying transient
// failures per the policy. Exhausted retries surface in DetectionSet.Err;
// never fatal to the job on their own.
func (c *Client) Detect(ctx context.Context, imageData []byte, width, height int, candidates []defect.BoundingBox) defect.DetectionSet {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		detections, err := c.detectOnce(ctx, imageData, width, height, candidates)
		if err == nil {
			return defect.DetectionSet{
				Detections: detections,
				LatencyMs:  time.Since(start).Milliseconds(),
			}
		}

		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			log.Printf("[VLM] Permanent failure, not retrying: %v", err)
			break
		}

		log.Printf("[VLM] Attempt %d/%d failed: %v", attempt, c.policy.MaxAttempts, err)

		if attempt < c.policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return defect.DetectionSet{
					LatencyMs: time.Since(start).Milliseconds(),
					Err:       &defect.DetectorUnavailableError{Detector: "secondary", Err: ctx.Err()},
				}
			case <-time.After(c.policy.Delay(attempt)):
			}
		}
	}

	return defect.DetectionSet{
		LatencyMs: time.Since(start).Milliseconds(),
		Err:       &defect.DetectorUnavailableError{Detector: "secondary", Err: lastErr},
	}
}

func (c *Client) detectOnce(ctx context.Context, imageData []byte, width, height int, candidates []defect.BoundingBox) ([]defect.Detection, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: buildPrompt(width, height, candidates)},
					{
						Type: "image_url",
						ImageURL: &imageURL{
							URL: fmt.Sprintf("data:image/jpeg;base64,%s",
								base64.StdEncoding.EncodeToString(imageData)),
						},
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &permanentError{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &permanentError{fmt.Errorf("endpoint rejected request with status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	detections, err := ParseDetections(chatResp.Choices[0].Message.Content, width, height)
	if err != nil {
		// Malformed model output is transient: the next attempt may
		// produce a parseable reply.
		return nil, fmt.Errorf("unusable model reply: %w", err)
	}

	return detections, nil
}

func buildPrompt(width, height int, candidates []defect.BoundingBox) string {
	var sb strings.Builder

	sb.WriteString("You are inspecting an aircraft surface image of ")
	fmt.Fprintf(&sb, "%dx%d pixels for structural defects.\n", width, height)
	sb.WriteString("Report every visible defect as a JSON array, one entry per defect:\n")
	sb.WriteString(`[{"class": "...", "confidence": 0.0-1.0, "bbox": {"x": 0, "y": 0, "width": 0, "height": 0}, "description": "..."}]` + "\n")
	sb.WriteString("Allowed classes: ")
	for i, c := range defect.Classes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(c))
	}
	sb.WriteString(".\nCoordinates are pixels with origin at the top-left. Return [] if no defects are visible.")

	if len(candidates) > 0 {
		sb.WriteString("\nPay particular attention to these regions flagged by a prior detector:")
		for _, b := range candidates {
			fmt.Fprintf(&sb, " (x=%d y=%d w=%d h=%d)", b.X, b.Y, b.Width, b.Height)
		}
	}

	return sb.String()
}
