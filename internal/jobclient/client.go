// Package jobclient provides an HTTP client for the pipeline job endpoints.
package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flow/internal/services"
)

// Job path segments under /api/v1/pipeline/jobs.
const (
	JobRecurring      = "recurring"
	JobBudgetAlerts   = "budget-alerts"
	JobMonthlyReports = "monthly-reports"
)

// Jobs lists every job the API exposes.
var Jobs = []string{JobRecurring, JobBudgetAlerts, JobMonthlyReports}

// Client triggers pipeline jobs on the API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a pipeline job client.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// IsJob reports whether name is a known job.
func IsJob(name string) bool {
	for _, j := range Jobs {
		if j == name {
			return true
		}
	}
	return false
}

// StatusError is returned when the API answers with a non-200 status.
type StatusError struct {
	Job        string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("running %s: unexpected status %d (%s: %s)", e.Job, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("running %s: unexpected status %d", e.Job, e.StatusCode)
}

// Run triggers job. A zero now lets the server use its own clock.
func (c *Client) Run(ctx context.Context, job string, now time.Time) (*services.RunResult, error) {
	if !IsJob(job) {
		return nil, fmt.Errorf("unknown job %q", job)
	}

	var body bytes.Buffer
	if !now.IsZero() {
		payload := struct {
			Now time.Time `json:"now"`
		}{Now: now.UTC()}
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, fmt.Errorf("marshaling job request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/pipeline/jobs/"+job, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", job, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Job: job, StatusCode: resp.StatusCode}
		var errBody struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil {
			statusErr.Code = errBody.Error.Code
			statusErr.Message = errBody.Error.Message
		}
		return nil, statusErr
	}

	var result struct {
		Result *services.RunResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", job, err)
	}
	if result.Result == nil {
		return nil, fmt.Errorf("decoding %s response: missing result", job)
	}
	return result.Result, nil
}
