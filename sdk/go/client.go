package offerlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Offerline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// e.g. http://127.0.0.1:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	BusinessDescription string `json:"business_description,omitempty"`
	AvatarDescription   string `json:"avatar_description,omitempty"`
	DeepResearch        bool   `json:"deep_research"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// Document is one generated offer document.
type Document struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	DocType   string  `json:"doc_type"`
	DocNumber int     `json:"doc_number"`
	Title     string  `json:"title"`
	Content   *string `json:"content,omitempty"`
	Status    string  `json:"status"`
	UpdatedAt string  `json:"updated_at"`
}

// Limits mirrors the usage-limits response.
type Limits struct {
	Allowed     int  `json:"allowed"`
	Used        int  `json:"used"`
	Remaining   int  `json:"remaining"`
	IsUnlimited bool `json:"isUnlimited"`
}

// StartResult is returned when a generation run is accepted.
type StartResult struct {
	Success      bool   `json:"success"`
	ProjectID    string `json:"projectId"`
	GenerationID string `json:"generationId"`
}

// File is a downloaded export.
type File struct {
	Filename    string
	ContentType string
	Body        []byte
}

// APIError wraps non-2xx responses. Code, Message and Limits are filled when
// the body carries the standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Limits     *Limits
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ErrWaitTimeout is returned by WaitForProject when polling gives up.
var ErrWaitTimeout = errors.New("timed out waiting for project")

// StartGeneration asks the server to generate every document of a project.
func (c *Client) StartGeneration(ctx context.Context, projectID string) (StartResult, error) {
	var resp StartResult
	err := c.do(ctx, http.MethodPost, "start-generation", map[string]any{"projectId": projectID}, &resp)
	return resp, err
}

// RegenerateDocument regenerates a single document.
func (c *Client) RegenerateDocument(ctx context.Context, projectID, docType string) error {
	body := map[string]any{
		"projectId": projectID,
		"docType":   docType,
	}
	return c.do(ctx, http.MethodPost, "regenerate-document", body, nil)
}

// UsageLimits returns the caller's remaining quota.
func (c *Client) UsageLimits(ctx context.Context) (Limits, error) {
	var resp Limits
	err := c.do(ctx, http.MethodGet, "usage-limits", nil, &resp)
	return resp, err
}

// GetProject fetches a project owned by the caller.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// ListDocuments returns the project's documents in sequence order.
func (c *Client) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	var resp []Document
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID)+"/documents", nil, &resp)
	return resp, err
}

// ExportPDF downloads one document as a PDF.
func (c *Client) ExportPDF(ctx context.Context, projectID, documentID string) (File, error) {
	body := map[string]any{
		"projectId":  projectID,
		"documentId": documentID,
	}
	return c.download(ctx, "export-pdf", body)
}

// ExportZip downloads every complete document as a ZIP archive.
func (c *Client) ExportZip(ctx context.Context, projectID string) (File, error) {
	return c.download(ctx, "export-zip", map[string]any{"projectId": projectID})
}

// WaitForProject polls the project every interval until it leaves the
// generating state or timeout elapses.
func (c *Client) WaitForProject(ctx context.Context, projectID string, interval, timeout time.Duration) (Project, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := c.GetProject(ctx, projectID)
		if err != nil {
			if ctx.Err() != nil {
				return p, fmt.Errorf("%w: %w", ErrWaitTimeout, ctx.Err())
			}
			return p, err
		}
		if p.Status != "generating" {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return p, fmt.Errorf("%w: last status %s", ErrWaitTimeout, p.Status)
		case <-ticker.C:
		}
	}
}

func (c *Client) download(ctx context.Context, endpoint string, body any) (File, error) {
	resp, err := c.send(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return File{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, err
	}
	f := File{ContentType: resp.Header.Get("Content-Type"), Body: b}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		f.Filename = params["filename"]
	}
	return f, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, b)
	}
	return resp, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Limits *Limits `json:"limits"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Limits = env.Limits
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
