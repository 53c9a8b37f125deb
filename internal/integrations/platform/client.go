package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"recordchat-agent/internal/domain"
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("platform: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the schema-discovery and query API of the data platform.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the platform at baseURL. The API token is
// fetched from SSM through ps on the first call and reused for the lifetime
// of the process.
func NewClient(baseURL string, ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("platform: base URL must not be empty")
	}
	if ps == nil {
		return nil, errors.New("platform: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("platform: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	})
	return c.apiKey, c.keyErr
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/platform-api-token"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Health reports platform liveness.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return HealthStatus{}, err
	}
	return out, nil
}

// OrgInfo returns identity metadata for the connected org.
func (c *Client) OrgInfo(ctx context.Context) (OrgInfo, error) {
	var out OrgInfo
	if err := c.getJSON(ctx, "/org", &out); err != nil {
		return OrgInfo{}, err
	}
	return out, nil
}

// AvailableFields returns the set of field names currently queryable for an
// object. An unknown object yields an empty list, not an error.
func (c *Client) AvailableFields(ctx context.Context, objectName string) ([]string, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return nil, errors.New("platform: object name must not be empty")
	}
	var out struct {
		Fields []string `json:"fields"`
	}
	if err := c.getJSON(ctx, "/objects/"+url.PathEscape(objectName)+"/fields", &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

// ExecuteQuery runs a bounded query and returns the matching records.
func (c *Client) ExecuteQuery(ctx context.Context, spec domain.QuerySpec) (QueryResult, error) {
	if spec.Object == "" {
		return QueryResult{}, errors.New("platform: query spec object must not be empty")
	}
	if spec.Limit <= 0 {
		return QueryResult{}, errors.New("platform: query spec limit must be positive")
	}
	var out QueryResult
	if err := c.postJSON(ctx, "/query", spec, &out); err != nil {
		return QueryResult{}, err
	}
	return out, nil
}

// ObjectInsights returns the discovered summary for an object.
func (c *Client) ObjectInsights(ctx context.Context, objectName string) (ObjectInsights, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return ObjectInsights{}, errors.New("platform: object name must not be empty")
	}
	var out ObjectInsights
	if err := c.getJSON(ctx, "/objects/"+url.PathEscape(objectName)+"/insights", &out); err != nil {
		return ObjectInsights{}, err
	}
	return out, nil
}

// TopFields returns the n most-used fields for an object, ranked.
func (c *Client) TopFields(ctx context.Context, objectName string, n int) ([]FieldUsage, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return nil, errors.New("platform: object name must not be empty")
	}
	if n <= 0 {
		n = 10
	}
	var out struct {
		Fields []FieldUsage `json:"fields"`
	}
	path := "/objects/" + url.PathEscape(objectName) + "/top-fields?n=" + strconv.Itoa(n)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

// GenerateContextBundle asks the platform to persist a fresh discovery
// bundle for an object, improving later field discovery.
func (c *Client) GenerateContextBundle(ctx context.Context, objectName string, opts BundleOptions) (ContextBundle, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return ContextBundle{}, errors.New("platform: object name must not be empty")
	}
	var out ContextBundle
	if err := c.postJSON(ctx, "/objects/"+url.PathEscape(objectName)+"/context-bundle", opts, &out); err != nil {
		return ContextBundle{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("platform: marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("platform: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("platform: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.String(),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("platform: read response body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("platform: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("platform: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("platform: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("platform: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("platform: API token is empty")
	}
	return tp.Token, nil
}
