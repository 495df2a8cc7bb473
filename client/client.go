// Package client is the narrow HTTP collaborator that submits a
// generation request and hands back the task id the channel needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"coursegen/config"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// CourseConfig mirrors the generation parameters the backend expects.
type CourseConfig struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Audience string `json:"audience"`
	Level    string `json:"level"`
	Duration string `json:"duration"`
	Chapters int    `json:"chapters"`
}

type GenerateRequest struct {
	DocumentIDs  []int        `json:"document_ids"`
	CourseConfig CourseConfig `json:"course_config"`
}

// GenerateResponse carries the task id that scopes the progress
// channel. CourseID may be zero until generation completes.
type GenerateResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"task_id"`
	CourseID int    `json:"course_id,omitempty"`
}

type Course struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	Chapters    int    `json:"chapters,omitempty"`
}

// GenerateCourse submits a generation job and returns its task id.
func (c *Client) GenerateCourse(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.DocumentIDs == nil {
		req.DocumentIDs = []int{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	var resp GenerateResponse
	if err := c.post(ctx, "/api/v1/courses/generate", body, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, fmt.Errorf("backend accepted the request but returned no task_id")
	}
	return &resp, nil
}

// GetCourse fetches a course record, typically after a successful
// completion event named its id.
func (c *Client) GetCourse(ctx context.Context, id int) (*Course, error) {
	var course Course
	if err := c.get(ctx, fmt.Sprintf("/api/v1/courses/%d", id), &course); err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
