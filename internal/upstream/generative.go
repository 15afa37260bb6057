// Package upstream holds clients for the external generative-text and
// image-inference endpoints.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FallbackReply is returned when the generative endpoint answers with no
// usable text.
const FallbackReply = "Sorry, I could not generate a response."

const maxResponseBytes = 4 << 20

type GenerativeClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewGenerativeClient(endpoint, apiKey string, timeout time.Duration) *GenerativeClient {
	return &GenerativeClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

// Generate sends prompt as a single user turn and joins the text parts of the
// first candidate. Transport failures and non-2xx answers are errors; a
// well-formed answer without text yields FallbackReply.
func (c *GenerativeClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	target, err := c.requestURL()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("generate: status %d", resp.StatusCode)
	}

	return extractReply(raw), nil
}

func extractReply(raw []byte) string {
	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return FallbackReply
	}
	if len(parsed.Candidates) == 0 || parsed.Candidates[0].Content == nil {
		return FallbackReply
	}

	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return FallbackReply
	}
	return b.String()
}

func (c *GenerativeClient) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
