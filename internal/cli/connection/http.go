package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTLSConfig sets the TLS configuration used for https servers.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *HTTPClient) {
		c.client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: cfg,
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// NewHTTPClient creates a client for server, which may omit the scheme.
func NewHTTPClient(server string, opts ...ClientOption) *HTTPClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	c := &HTTPClient{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 60 * time.Second},
		userAgent: "retrostate-cli/" + buildinfo.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, header ...string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, "", nil, header)
}

// Post performs a POST request with a JSON body. A nil body sends none.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	if body == nil {
		return c.do(ctx, http.MethodPost, path, "", nil, nil)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", data, nil)
}

// PostRaw performs a POST request with a pre-encoded body.
func (c *HTTPClient) PostRaw(ctx context.Context, path, contentType string, body []byte, header ...string) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, contentType, body, header)
}

// GetJSON performs a GET and decodes the envelope's data into target.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, target any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// PostJSON performs a POST and decodes the envelope's data into target.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, body, target any) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// do sends one request. header holds alternating key/value pairs.
func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body []byte, header []string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// envelope mirrors the server's JSON response envelope.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   any             `json:"details"`
}

// ParseResponse closes resp and decodes the envelope's data into target.
// Error statuses become *APIError.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return errorFromBody(resp.StatusCode, resp.Header.Get("X-Error-Code"), raw)
	}
	if target == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}

func errorFromBody(status int, code string, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Code: code}
	var env envelope
	if json.Unmarshal(raw, &env) == nil {
		if env.Code != "" {
			apiErr.Code = env.Code
		}
		apiErr.Message = env.Message
		if env.Details != nil {
			apiErr.Details = fmt.Sprint(env.Details)
		}
	}
	return apiErr
}
