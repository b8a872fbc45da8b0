// Package client is a typed HTTP client for the practice portal API.
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

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/api"
	"github.com/hackgods/dental-practice-portal/internal/logging"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("client: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client talks to one organization's view of the API.
type Client struct {
	baseURL        string
	organizationID uuid.UUID
	httpClient     *http.Client
	logger         *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client scoped to organizationID.
func NewClient(baseURL string, organizationID uuid.UUID, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		organizationID: organizationID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// OrganizationID is the tenant every request is sent for.
func (c *Client) OrganizationID() uuid.UUID {
	return c.organizationID
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode request: %w", err)
		}
		r = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set(api.OrganizationHeader, c.organizationID.String())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s failed: %w", req.Method, req.URL.Path, err)
	}

	c.logger.WithComponent("client").
		WithField("method", req.Method).
		WithField("path", req.URL.Path).
		WithField("status", resp.StatusCode).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("api request")

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er api.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		apiErr.Code = er.Error
		apiErr.Message = er.Details
		apiErr.Fields = er.Fields
		return apiErr
	}
	apiErr.Code = http.StatusText(resp.StatusCode)
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// do sends a JSON request and decodes the JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}

// text sends a request whose response body is returned verbatim.
func (c *Client) text(ctx context.Context, method, path string) (string, error) {
	req, err := c.newRequest(ctx, method, path, nil, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("client: read %s response: %w", path, err)
	}
	return string(body), nil
}
