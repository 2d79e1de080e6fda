package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TokenProvider yields a bearer token for the upstream task API.
type TokenProvider func(ctx context.Context) (string, error)

// Client fetches workflow tasks.
type Client interface {
	ListTasks(ctx context.Context) (TaskListResponse, error)
	GetTask(ctx context.Context, taskID string) (Task, error)
}

// HTTPClient is the bearer-token HTTP implementation of Client.
type HTTPClient struct {
	baseURL string
	token   TokenProvider
	client  *http.Client
}

// NewHTTPClient targets a workflow API root, e.g.
// https://example.lusid.com/workflow/api.
func NewHTTPClient(baseURL string, token TokenProvider, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("acquiring task API token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("task API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("task API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding task API response: %w", err)
	}
	return nil
}

// ListTasks fetches all tasks without server-side filters; callers filter
// locally via FilterTasks.
func (c *HTTPClient) ListTasks(ctx context.Context) (TaskListResponse, error) {
	var out TaskListResponse
	if err := c.get(ctx, "/tasks", &out); err != nil {
		return TaskListResponse{}, err
	}
	return out, nil
}

// GetTask fetches one task by id.
func (c *HTTPClient) GetTask(ctx context.Context, taskID string) (Task, error) {
	var out Task
	if err := c.get(ctx, "/tasks/"+url.PathEscape(taskID), &out); err != nil {
		return Task{}, err
	}
	return out, nil
}
