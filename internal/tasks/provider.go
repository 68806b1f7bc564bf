package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

// Provider fetches speaking tasks from the content webhook. Each category has
// its own prompt template; "category empty" and "id not found" are normal
// nil results, not errors.
type Provider struct {
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewProvider(webhookURL string, timeout time.Duration, log *slog.Logger) *Provider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Categories returns the list of task category names.
func (p *Provider) Categories(ctx context.Context) ([]string, error) {
	var parsed struct {
		Status string   `json:"status"`
		Titles []string `json:"titles"`
	}
	if err := p.get(ctx, url.Values{"action": {"get_titles"}}, &parsed); err != nil {
		return nil, err
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("content provider status: %s", parsed.Status)
	}
	return parsed.Titles, nil
}

// RandomTask returns the category's prompt template and a random task from it.
// An empty category yields ("", nil, nil).
func (p *Provider) RandomTask(ctx context.Context, category string) (string, *models.Task, error) {
	return p.fetch(ctx, url.Values{"action": {"get_task_from_sheet"}, "sheet": {category}})
}

// TaskByID looks a task up across all categories. A missing id yields
// ("", nil, nil).
func (p *Provider) TaskByID(ctx context.Context, id string) (string, *models.Task, error) {
	return p.fetch(ctx, url.Values{"action": {"get_task_by_id"}, "id": {id}})
}

type taskPayload struct {
	ID        string `json:"id"`
	TaskText  string `json:"task_text"`
	TimeLimit string `json:"time_limit"`
	Image1    string `json:"image1"`
	Image2    string `json:"image2"`
}

func (p *Provider) fetch(ctx context.Context, params url.Values) (string, *models.Task, error) {
	var parsed struct {
		Status   string       `json:"status"`
		Prompt   string       `json:"prompt"`
		TaskData *taskPayload `json:"task_data"`
	}
	if err := p.get(ctx, params, &parsed); err != nil {
		return "", nil, err
	}
	if parsed.Status != "success" || parsed.TaskData == nil {
		// Not found / empty category is a normal branch.
		return "", nil, nil
	}

	task := &models.Task{
		ID:     parsed.TaskData.ID,
		Text:   parsed.TaskData.TaskText,
		Image1: parsed.TaskData.Image1,
		Image2: parsed.TaskData.Image2,
	}
	if raw := strings.TrimSpace(parsed.TaskData.TimeLimit); raw != "" {
		if limit, err := strconv.ParseFloat(raw, 64); err == nil && limit > 0 {
			task.TimeLimit = int(limit)
		}
	}
	return parsed.Prompt, task, nil
}

func (p *Provider) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.webhookURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read content response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("content provider status: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode content response: %w", err)
	}
	return nil
}
