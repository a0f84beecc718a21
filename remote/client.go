package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"mediaflow/config"
	"mediaflow/job"
)

// Client talks to the processing server's JSON API.
type Client struct {
	baseURL    string
	jobsPath   string
	httpClient *http.Client
}

// New creates a client for cfg.BackendURL.
func New(cfg *config.Config) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.RequestTimeout})
}

// NewWithHTTPClient creates a client with a custom HTTP client
func NewWithHTTPClient(cfg *config.Config, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BackendURL, "/"),
		jobsPath:   "/" + strings.Trim(cfg.JobsPath, "/"),
		httpClient: httpClient,
	}
}

// SubmitResponse is the server's answer to a processing request. Synchronous
// endpoints fill Result; asynchronous ones return a JobID to poll.
type SubmitResponse struct {
	Success bool            `json:"success"`
	JobID   string          `json:"job_id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type jobList struct {
	Jobs []job.Job `json:"jobs"`
}

// GetJob fetches one job snapshot. A 404 maps to job.ErrNotFound.
func (c *Client) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var j job.Job
	err := c.do(ctx, http.MethodGet, c.jobsPath+"/"+url.PathEscape(id), nil, &j)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", job.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if j.ID == "" {
		j.ID = id
	}
	return &j, nil
}

// ListJobs fetches every job the server knows.
func (c *Client) ListJobs(ctx context.Context) ([]job.Job, error) {
	var list jobList
	if err := c.do(ctx, http.MethodGet, c.jobsPath, nil, &list); err != nil {
		return nil, err
	}
	return list.Jobs, nil
}

// Submit posts params as JSON to endpoint, a path relative to the backend.
func (c *Client) Submit(ctx context.Context, endpoint string, params map[string]any) (*SubmitResponse, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/"+strings.TrimLeft(endpoint, "/"), body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "submission rejected"
		}
		return &resp, fmt.Errorf("submit to %s rejected: %s", endpoint, reason)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
