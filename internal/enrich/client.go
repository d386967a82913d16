package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ─────────────────────────────────────────────────────────────
// Client — the Sixtyfour enrichment/lookup API
// One request per row; callers own concurrency and ordering.
// ─────────────────────────────────────────────────────────────

const (
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 20 * time.Minute
)

// Client calls the remote enrichment service. PollInterval and PollTimeout
// control how enrich-lead task results are awaited; tests shrink them.
type Client struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewClient creates a client with the default timeouts.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		PollInterval: defaultPollInterval,
		PollTimeout:  defaultPollTimeout,
	}
}

// EnrichLead submits an async enrich-lead task for one row and polls until
// the task completes. Returns the result fields keyed by the requested
// struct keys.
func (c *Client) EnrichLead(ctx context.Context, leadInfo, structFields map[string]any, researchPlan string) (map[string]any, error) {
	body := map[string]any{"lead_info": leadInfo, "struct": structFields}
	if researchPlan != "" {
		body["research_plan"] = researchPlan
	}

	var submitted struct {
		TaskID string `json:"task_id"`
	}
	if err := c.postJSON(ctx, "/enrich-lead-async", body, &submitted); err != nil {
		return nil, fmt.Errorf("submit enrich-lead: %w", err)
	}
	if submitted.TaskID == "" {
		return nil, fmt.Errorf("submit enrich-lead: empty task_id")
	}
	return c.pollTask(ctx, submitted.TaskID)
}

// pollTask waits for an enrich-lead task to finish.
func (c *Client) pollTask(ctx context.Context, taskID string) (map[string]any, error) {
	deadline := time.Now().Add(c.PollTimeout)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		var status struct {
			Status string         `json:"status"`
			Result map[string]any `json:"result"`
			Error  string         `json:"error"`
		}
		if err := c.getJSON(ctx, "/job-status/"+taskID, &status); err != nil {
			return nil, fmt.Errorf("poll task %s: %w", taskID, err)
		}
		switch status.Status {
		case "completed":
			return status.Result, nil
		case "failed":
			msg := status.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("enrich-lead task %s failed: %s", taskID, msg)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("enrich-lead task %s did not complete within %s", taskID, c.PollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FindEmail looks up an email address for one row. Mode is PROFESSIONAL or
// PERSONAL. Returns the full response object.
func (c *Client) FindEmail(ctx context.Context, lead map[string]any, mode string) (map[string]any, error) {
	if mode == "" {
		mode = "PROFESSIONAL"
	}
	var out map[string]any
	if err := c.postJSON(ctx, "/find-email", map[string]any{"lead": lead, "mode": mode}, &out); err != nil {
		return nil, fmt.Errorf("find-email: %w", err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}
