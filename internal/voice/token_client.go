package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenClient fetches room grants from the API's /api/token endpoint.
type TokenClient struct {
	baseURL string
	http    *http.Client
}

func NewTokenClient(baseURL string, timeout time.Duration) *TokenClient {
	return &TokenClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type tokenBody struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

func (c *TokenClient) Fetch(ctx context.Context, room, identity string) (string, error) {
	q := url.Values{}
	if room != "" {
		q.Set("room", room)
	}
	if identity != "" {
		q.Set("user", identity)
	}
	target := c.baseURL + "/api/token"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var body tokenBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if body.Error != "" {
			return "", fmt.Errorf("token endpoint: %s", body.Error)
		}
		return "", fmt.Errorf("token endpoint: status %d", resp.StatusCode)
	}
	if body.Token == "" {
		return "", errors.New("token endpoint returned no token")
	}
	return body.Token, nil
}
