// Package client is a Go client for the canvas HTTP API.
package client

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
	"time"

	"github.com/opensandbox/canvas/pkg/types"
)

// Client is an HTTP client for the canvas API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new canvas API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// doRequest performs an HTTP request with API key authentication. A string
// body is sent raw; anything else is encoded as JSON.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(b)
		contentType = "application/octet-stream"
	default:
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// call performs a request and decodes a JSON response into out, if non-nil.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func projectPath(id string, rest ...string) string {
	return "/projects/" + url.PathEscape(id) + strings.Join(rest, "")
}

func withPath(p string) string {
	return "?path=" + url.QueryEscape(p)
}

// CreateProject creates a project from a template and/or files.
func (c *Client) CreateProject(ctx context.Context, cfg types.ProjectConfig) (*types.Project, error) {
	var p types.Project
	if err := c.call(ctx, http.MethodPost, "/projects", cfg, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]types.Project, error) {
	var resp types.ProjectListResponse
	if err := c.call(ctx, http.MethodGet, "/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// GetProject returns one project.
func (c *Client) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var p types.Project
	if err := c.call(ctx, http.MethodGet, projectPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject deletes a project and its archive.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, projectPath(id), nil, nil)
}

// HibernateProject saves a project and evicts its session.
func (c *Client) HibernateProject(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, projectPath(id, "/hibernate"), nil, nil)
}

// ReadFile reads a file from a project.
func (c *Client) ReadFile(ctx context.Context, id, path string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, projectPath(id, "/files", withPath(path)), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}

	// Server returns plain text content, not JSON
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

// WriteFile creates or overwrites a file and returns the revision of the
// resulting build.
func (c *Client) WriteFile(ctx context.Context, id, path, content string) (uint64, error) {
	var resp struct {
		Revision uint64 `json:"revision"`
	}
	if err := c.call(ctx, http.MethodPut, projectPath(id, "/files", withPath(path)), content, &resp); err != nil {
		return 0, err
	}
	return resp.Revision, nil
}

// ListDir lists a directory's children.
func (c *Client) ListDir(ctx context.Context, id, path string) ([]types.EntryInfo, error) {
	var entries []types.EntryInfo
	if err := c.call(ctx, http.MethodGet, projectPath(id, "/files/list", withPath(path)), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// MakeDir creates a directory and any missing parents.
func (c *Client) MakeDir(ctx context.Context, id, path string) error {
	return c.call(ctx, http.MethodPost, projectPath(id, "/files/mkdir", withPath(path)), nil, nil)
}

// RemoveFile deletes a file or directory.
func (c *Client) RemoveFile(ctx context.Context, id, path string) error {
	return c.call(ctx, http.MethodDelete, projectPath(id, "/files", withPath(path)), nil, nil)
}

// MoveFile renames or moves a file or directory.
func (c *Client) MoveFile(ctx context.Context, id, from, to string) error {
	return c.call(ctx, http.MethodPost, projectPath(id, "/files/move"), types.MoveRequest{From: from, To: to}, nil)
}

// ApplyToolCalls applies a batch of agent file-edit commands.
func (c *Client) ApplyToolCalls(ctx context.Context, id string, calls []types.ToolCall) (*types.ToolCallResponse, error) {
	var resp types.ToolCallResponse
	if err := c.call(ctx, http.MethodPost, projectPath(id, "/tool-calls"), types.ToolCallRequest{Calls: calls}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSnapshot returns every file in the project.
func (c *Client) GetSnapshot(ctx context.Context, id string) (map[string]string, error) {
	var snap types.Snapshot
	if err := c.call(ctx, http.MethodGet, projectPath(id, "/snapshot"), nil, &snap); err != nil {
		return nil, err
	}
	return snap.Files, nil
}

// PutSnapshot replaces every file in the project.
func (c *Client) PutSnapshot(ctx context.Context, id string, files map[string]string) error {
	return c.call(ctx, http.MethodPut, projectPath(id, "/snapshot"), types.Snapshot{Files: files}, nil)
}

// GetArtifact returns the latest build. A project without an entry module
// yields an APIError with status 422.
func (c *Client) GetArtifact(ctx context.Context, id string) (*types.Artifact, error) {
	var art types.Artifact
	if err := c.call(ctx, http.MethodGet, projectPath(id, "/artifact"), nil, &art); err != nil {
		return nil, err
	}
	return &art, nil
}

// CreatePreviewToken issues a token and URL for the project's preview.
func (c *Client) CreatePreviewToken(ctx context.Context, id string) (*types.PreviewToken, error) {
	var tok types.PreviewToken
	if err := c.call(ctx, http.MethodPost, projectPath(id, "/preview-token"), nil, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// ListTemplates returns the starter templates.
func (c *Client) ListTemplates(ctx context.Context) ([]types.Template, error) {
	var templates []types.Template
	if err := c.call(ctx, http.MethodGet, "/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}
