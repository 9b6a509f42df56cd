// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the REST client for the Encadri backend. The chat and
// notification layers use it for project membership (to derive chat
// partners), document upload (attachments are uploaded before the
// message referencing them is sent) and explicit notification creation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// MaxUploadSize caps attachment uploads.
	MaxUploadSize = 50 * 1024 * 1024 // 50MB
)

// Error variables for common API failures.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates the request was rejected for identity
	// reasons.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTooLarge indicates an upload exceeded MaxUploadSize.
	ErrTooLarge = errors.New("upload too large")
)

// APIError represents a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d)", e.Status)
}

// apiErrorResponse is the backend's error envelope.
type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the Encadri REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	maxRetries int
	userAgent  string
}

// NewClient creates a client rooted at the given base URL, for example
// "https://api.encadri.example".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Default(),
		maxRetries: DefaultMaxRetries,
		userAgent:  "encadri-tui/0.1.0",
	}
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *Client) WithMaxRetries(n int) *Client {
	if n > 0 {
		c.maxRetries = n
	}
	return c
}

// WithLogger sets the logger for request diagnostics.
func (c *Client) WithLogger(l *log.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithHTTPClient substitutes the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ProjectsForUser lists the projects the user belongs to, as supervisor
// or as student.
func (c *Client) ProjectsForUser(ctx context.Context, email string) ([]Project, error) {
	endpoint := c.baseURL + "/api/projects?member=" + url.QueryEscape(email)

	var projects []Project
	if err := c.getJSON(ctx, endpoint, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateNotification asks the server to create a notification. The
// server persists it and fans it out via the notification hub.
func (c *Client) CreateNotification(ctx context.Context, req CreateNotificationRequest) error {
	endpoint := c.baseURL + "/api/notifications"

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.doWithRetry(ctx, httpReq, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp.StatusCode, respBody)
	}
	return nil
}

// UploadDocument stores a file with the document service and returns the
// resulting record. The returned Document.URL is durable, so it can be
// embedded in a chat message attachment before the message is sent.
//
// Uploads are not retried: the reader is consumed on the first attempt.
func (c *Client) UploadDocument(ctx context.Context, projectID, filename, contentType string, r io.Reader) (*Document, error) {
	endpoint := c.baseURL + "/api/documents"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("projectId", projectID); err != nil {
		return nil, fmt.Errorf("failed to write field: %w", err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if n > MaxUploadSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, filename, MaxUploadSize)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &doc, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// getJSON performs a GET with retries and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.doWithRetry(ctx, req, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// doWithRetry performs an HTTP request with exponential backoff on
// transport errors and 5xx responses. body is re-attached on each
// attempt; pass nil for body-less requests.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		reqCopy := req.Clone(ctx)
		if body != nil {
			reqCopy.Body = io.NopCloser(bytes.NewReader(body))
		}

		c.logRequest(reqCopy)
		start := time.Now()
		resp, err := c.httpClient.Do(reqCopy)
		if err == nil && resp.StatusCode < 500 {
			c.logResponse(resp, time.Since(start))
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			c.logResponse(resp, time.Since(start))
			lastErr = &APIError{Status: resp.StatusCode}
			resp.Body.Close()
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
}

// logRequest logs a request line. Headers and bodies are never logged.
func (c *Client) logRequest(req *http.Request) {
	c.logger.Printf("api: %s %s", req.Method, req.URL.Path)
}

func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	c.logger.Printf("api: %d %s (%v)", resp.StatusCode, resp.Request.URL.Path, duration)
}

// handleErrorResponse converts a non-2xx response into a Go error.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var envelope apiErrorResponse
	msg := ""
	if err := json.Unmarshal(body, &envelope); err == nil {
		msg = envelope.Message
		if msg == "" {
			msg = envelope.Error
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return ErrUnauthorized
	case http.StatusNotFound:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return ErrNotFound
	default:
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return &APIError{Status: statusCode, Message: msg}
	}
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
