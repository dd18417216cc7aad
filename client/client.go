// Package client is the Go SDK for the vorpal registry API. It mirrors the
// HTTP surface with typed request groups and maps the API's failure modes
// onto sentinel errors callers can test with errors.Is.
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
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned for 409 responses.
var ErrConflict = errors.New("conflict")

// APIError is any non-2xx response that is not one of the sentinel cases.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// BlockedError is a 403 policy block. It carries the full evaluation
// result so callers can show the specific blocking messages.
type BlockedError struct {
	Message    string
	Evaluation *EvaluationResult
}

func (e *BlockedError) Error() string { return e.Message }

// Client talks to one vorpal server.
type Client struct {
	baseURL string
	http    *http.Client
	apiKey  string
	token   string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends the key as X-API-Key on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Systems returns the systems request group.
func (c *Client) Systems() *SystemsService { return &SystemsService{c} }

// Controls returns the controls request group.
func (c *Client) Controls() *ControlsService { return &ControlsService{c} }

// Policies returns the policies request group.
func (c *Client) Policies() *PoliciesService { return &PoliciesService{c} }

// Audit returns the audit request group.
func (c *Client) Audit() *AuditService { return &AuditService{c} }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var payload struct {
		Error      string            `json:"error"`
		Evaluation *EvaluationResult `json:"evaluation"`
	}
	_ = json.Unmarshal(raw, &payload)
	message := payload.Error
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, message)
	case http.StatusForbidden:
		if payload.Evaluation != nil {
			return &BlockedError{Message: message, Evaluation: payload.Evaluation}
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
