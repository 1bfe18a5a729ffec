// Package client is a small Go SDK for the JobHound HTTP API.
package client

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

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Scan mirrors the scan record returned by GET /api/scans/:id.
type Scan struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	JobID        string          `json:"job_id"`
	ResumeID     string          `json:"resume_id"`
	Status       string          `json:"status"`
	MatchScore   *float64        `json:"match_score"`
	Results      json.RawMessage `json:"results,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the scan will not change again.
func (s *Scan) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("jobhound: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("jobhound: %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateScanAsync admits a scan without streaming and returns its id. The
// scan is analyzed in the background; follow it with WaitForScan.
func (c *Client) CreateScanAsync(ctx context.Context, jobID, resumeID string) (string, error) {
	body := map[string]string{"jobId": jobID, "resumeId": resumeID}
	var out struct {
		Success bool   `json:"success"`
		ScanID  string `json:"scan_id"`
		Status  string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/create-scan?mode=async", body, &out); err != nil {
		return "", err
	}
	if out.ScanID == "" {
		return "", fmt.Errorf("jobhound: create-scan returned no scan id")
	}
	return out.ScanID, nil
}

func (c *Client) GetScan(ctx context.Context, id string) (*Scan, error) {
	var s Scan
	if err := c.do(ctx, http.MethodGet, "/api/scans/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("jobhound: decode response: %w", err)
	}
	return nil
}
