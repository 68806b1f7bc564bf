package critique

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the generative inference API that produces review text for a
// spoken answer. The API key is passed per request so the review pipeline can
// rotate through a pool of credentials on failure.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Review submits the formatted prompt together with the audio answer URL and
// returns the generated critique text.
func (c *Client) Review(ctx context.Context, apiKey, prompt, audioURL string) (string, error) {
	payload := map[string]any{
		"model":  c.model,
		"prompt": prompt,
	}
	if audioURL != "" {
		payload["audio_url"] = audioURL
	}
	return c.post(ctx, apiKey, "/api/v1/review", payload)
}

// Transcribe converts the audio at the given URL to plain text.
func (c *Client) Transcribe(ctx context.Context, apiKey, audioURL string) (string, error) {
	payload := map[string]any{
		"audio_url": audioURL,
	}
	return c.post(ctx, apiKey, "/api/v1/transcribe", payload)
}

func (c *Client) post(ctx context.Context, apiKey, endpoint string, payload map[string]any) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	fullURL := base.ResolveReference(ref).String()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post critique: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("critique request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return "", fmt.Errorf("critique error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode critique response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if parsed.Code != 200 {
		return "", fmt.Errorf("critique failed: code=%d msg=%s", parsed.Code, parsed.Msg)
	}
	if parsed.Data.Text == "" {
		return "", fmt.Errorf("empty text in critique response")
	}
	return parsed.Data.Text, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
