package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NoDiseaseDetected is reported when the model returns an empty label.
const NoDiseaseDetected = "No disease detected"

// InferenceClient calls a Gradio style prediction endpoint whose first
// function takes (crop, image) and returns a text label.
type InferenceClient struct {
	endpoint string
	http     *http.Client
}

func NewInferenceClient(endpoint string, timeout time.Duration) *InferenceClient {
	return &InferenceClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	FnIndex int           `json:"fn_index"`
	Data    []interface{} `json:"data"`
}

type predictResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error"`
}

func (c *InferenceClient) Predict(ctx context.Context, crop string, image []byte, mimeType string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	body, err := json.Marshal(predictRequest{
		FnIndex: 0,
		Data:    []interface{}{crop, dataURL},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("predict: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("predict: status %d", resp.StatusCode)
	}

	var parsed predictResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("predict: %s", parsed.Error)
	}
	if len(parsed.Data) == 0 {
		return NoDiseaseDetected, nil
	}

	var label string
	if err := json.Unmarshal(parsed.Data[0], &label); err != nil || label == "" {
		return NoDiseaseDetected, nil
	}
	return label, nil
}
