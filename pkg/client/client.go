// Package client is the Go data layer for the motion transfer API: typed contracts,
// request helpers, a polling project query and notifying mutations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Project mirrors the server's project record. Tags describe the shape every response
// must have before it is handed to callers.
type Project struct {
	ID                int       `json:"id" validate:"gt=0"`
	OriginalVideoURL  string    `json:"originalVideoUrl" validate:"required"`
	IdentityFrameURL  *string   `json:"identityFrameUrl"`
	GeneratedVideoURL *string   `json:"generatedVideoUrl"`
	Status            Status    `json:"status" validate:"oneof=pending processing completed failed"`
	CreatedAt         time.Time `json:"createdAt"`
}

type errorBody struct {
	Message string `json:"message" validate:"required"`
}

const (
	msgCreateFailed  = "failed to create project"
	msgProcessFailed = "failed to start processing"
	msgFetchFailed   = "failed to fetch project"
)

// ErrInvalidResponse marks a response body that does not match the expected contract.
var ErrInvalidResponse = errors.New("response does not match the project contract")

// APIError is returned for non-2xx responses. Message is either the server's message or a
// generic description of the failed call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	validate   *validator.Validate
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken sets the token sent when the server has API authentication enabled.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) projectURL(id int) string {
	return c.baseURL + "/api/projects/" + strconv.Itoa(id)
}

// GetProject fetches one project. Any non-2xx response fails with "failed to fetch project".
func (c *Client) GetProject(ctx context.Context, id int) (*Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.projectURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msgFetchFailed}
	}
	return c.decodeProject(body)
}

// CreateProject uploads r as the multipart field "video". A 400 response fails with the
// server's message; any other non-2xx fails with "failed to create project".
func (c *Client) CreateProject(ctx context.Context, filename string, r io.Reader) (*Project, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("video", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/projects", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		if resp.StatusCode == http.StatusBadRequest {
			var e errorBody
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			if err := c.validate.Struct(e); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Message: e.Message}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msgCreateFailed}
	}
	return c.decodeProject(body)
}

// ProcessProject asks the server to start processing. Any non-2xx response fails with
// "failed to start processing".
func (c *Client) ProcessProject(ctx context.Context, id int) (*Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.projectURL(id)+"/process", strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msgProcessFailed}
	}
	return c.decodeProject(body)
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, body, nil
}

func (c *Client) decodeProject(body []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if p.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: createdAt is missing", ErrInvalidResponse)
	}
	return &p, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
