package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

// Client talks to the backend REST API. It is safe for concurrent use and
// cheap to copy through WithToken.
type Client struct {
	rest   *resty.Client
	token  string
	logger aqm.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

func WithLogger(logger aqm.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")

	c := &Client{
		rest:   rest,
		logger: aqm.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy that authenticates every request with token.
func (c *Client) WithToken(token string) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.token = token
	return &clone
}

func (c *Client) Token() string {
	if c == nil {
		return ""
	}
	return c.token
}

// Do issues a request and returns the decoded success envelope. The body
// is decoded whatever content type the server declared, so a success body
// that is not an envelope is an error rather than an empty result.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*aqm.SuccessResponse, error) {
	if c == nil || c.rest == nil {
		return nil, ErrNotConfigured
	}

	req := c.rest.R().SetContext(ctx)
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	op := method + " " + path
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("backend request failed", "op", op, "error", err)
		return nil, &APIError{Op: op, Messages: []string{err.Error()}, Kind: ErrNetwork}
	}

	raw := bytes.TrimSpace(resp.Body())
	status := resp.StatusCode()

	if resp.IsError() {
		var failure errorEnvelope
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &failure); err != nil {
				c.logger.Debug("backend error body is not JSON", "op", op, "status", status)
			}
		}
		apiErr := &APIError{Op: op, Status: status, Messages: failure.messages(), Kind: KindFor(status)}
		c.logger.Debug("backend returned error", "op", op, "status", status, "error", apiErr)
		return nil, apiErr
	}

	var result aqm.SuccessResponse
	if len(raw) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Error("backend returned undecodable body", "op", op, "status", status, "content_type", resp.Header().Get("Content-Type"))
		return nil, &APIError{Op: op, Status: status, Messages: []string{"invalid response body"}, Kind: ErrNetwork}
	}

	return &result, nil
}

// decodeSuccessResponse copies the dynamic response payload into dest.
func decodeSuccessResponse(resp *aqm.SuccessResponse, dest interface{}) error {
	if resp == nil {
		return errors.New("nil success response")
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
