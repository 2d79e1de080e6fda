// Package catalog provides the client for the tabular query backend:
// free-form SQL execution and table/field metadata lookup.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CatalogField is one field row from the catalog metadata endpoint.
type CatalogField struct {
	TableName    string `json:"TableName"`
	FieldName    string `json:"FieldName"`
	DataType     string `json:"DataType"`
	Description  string `json:"Description"`
	IsPrimaryKey bool   `json:"IsPrimaryKey"`
}

// Client is the backend surface the tools depend on. The concrete SQL
// semantics behind ExecuteSQL are opaque; only the input/output contract
// matters here.
type Client interface {
	// GetCatalogFields returns field metadata for tables matching
	// tableLike, which may carry wildcards (e.g. "Lusid.Instrument%").
	GetCatalogFields(ctx context.Context, tableLike string) ([]CatalogField, error)

	// ExecuteSQL runs a query and returns the decoded JSON payload as-is.
	// queryName is optional; one is generated when empty.
	ExecuteSQL(ctx context.Context, sql, queryName string) (any, error)
}

// TokenProvider returns a fresh bearer token for the backend.
type TokenProvider func(ctx context.Context) (string, error)

// HTTPClient is the production Client over the backend's HTTP API.
type HTTPClient struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
}

// NewHTTPClient creates a client for the given base URL. A zero timeout
// defaults to five minutes; long-running analytical queries are normal.
func NewHTTPClient(baseURL string, tokens TokenProvider, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("acquiring backend token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// GetCatalogFields calls GET /api/Catalog/fields?tableLike=...
func (c *HTTPClient) GetCatalogFields(ctx context.Context, tableLike string) ([]CatalogField, error) {
	endpoint := fmt.Sprintf("%s/api/Catalog/fields?tableLike=%s", c.baseURL, url.QueryEscape(tableLike))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("catalog request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var fields []CatalogField
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("parsing catalog response: %w", err)
	}
	return fields, nil
}

// ExecuteSQL calls PUT /api/Sql/json with the raw SQL as the request body.
// Scalar parameters are never forwarded; callers inline literals in the
// SQL text.
func (c *HTTPClient) ExecuteSQL(ctx context.Context, sql, queryName string) (any, error) {
	if queryName == "" {
		queryName = "Fathom.Query." + uuid.NewString()[:8]
	}
	endpoint := fmt.Sprintf("%s/api/Sql/json?jsonProper=true&queryName=%s", c.baseURL, url.QueryEscape(queryName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(sql))
	if err != nil {
		return nil, fmt.Errorf("creating sql request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("sql request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("parsing sql response: %w", err)
	}
	return data, nil
}
