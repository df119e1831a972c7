// Package upstream is the typed HTTP client for the external property API.
// The API is not part of this codebase; only its contract matters here, and
// historical response-shape drift (legacy field names, missing totals) is
// absorbed in this package so callers see one stable shape.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HenryGreene10/propertyfish/internal/model"
)

// ErrNotFound is returned when the upstream reports no property for a BBL.
var ErrNotFound = errors.New("property not found")

// Client talks to the external property API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates an upstream client. timeout bounds every request; zero
// means no client-side timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.Default().With("component", "upstream"),
	}
}

// searchWire tolerates both the current {total, items} shape and the legacy
// {total, rows} alias.
type searchWire struct {
	Total *int               `json:"total"`
	Items []model.RecordWire `json:"items"`
	Rows  []model.RecordWire `json:"rows"`
}

// Search issues GET /api/search with the given criteria. An absent total
// defaults to the returned row count.
func (c *Client) Search(ctx context.Context, criteria model.FilterCriteria) (*model.ResultPage, error) {
	endpoint := c.baseURL + "/api/search"
	if qs := criteria.QueryValues().Encode(); qs != "" {
		endpoint += "?" + qs
	}
	c.log.Debug("search", "url", endpoint)

	var wire searchWire
	if err := c.getJSON(ctx, endpoint, &wire); err != nil {
		return nil, err
	}

	items := wire.Items
	if items == nil {
		items = wire.Rows
	}
	page := &model.ResultPage{Records: model.Records(items)}
	if wire.Total != nil {
		page.Total = *wire.Total
	} else {
		page.Total = len(page.Records)
	}
	return page, nil
}

// PropertySummary issues GET /api/property/{bbl}/summary. A 404 maps to
// ErrNotFound; any other non-2xx status is a plain request failure.
func (c *Client) PropertySummary(ctx context.Context, bbl string) (*model.PropertyRecord, error) {
	endpoint := fmt.Sprintf("%s/api/property/%s/summary", c.baseURL, url.PathEscape(bbl))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var wire model.RecordWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	rec := wire.Record()
	return &rec, nil
}

// ChatRequest is the body sent to POST /api/chat. previous_filters carries
// the last inferred snapshot as conversational context.
type ChatRequest struct {
	Message         string             `json:"message"`
	Borough         *string            `json:"borough"`
	YearMin         *int               `json:"year_min"`
	PreviousFilters *model.ChatFilters `json:"previous_filters"`
}

// ChatResponse is the conversational endpoint's reply: narrative text plus a
// full replacement result set and the filter snapshot it inferred.
type ChatResponse struct {
	Message string             `json:"message"`
	Total   *int               `json:"total"`
	Rows    []model.RecordWire `json:"rows"`
	Filters model.ChatFilters  `json:"filters"`
}

// ChatResult is the decoded, normalized chat reply.
type ChatResult struct {
	Message string
	Total   int
	Rows    []model.PropertyRecord
	Filters model.ChatFilters
}

// Chat issues POST /api/chat.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat request failed with status %d", resp.StatusCode)
	}

	var wire ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	result := &ChatResult{
		Message: wire.Message,
		Rows:    model.Records(wire.Rows),
		Filters: wire.Filters.Sanitize(),
	}
	if wire.Total != nil {
		result.Total = *wire.Total
	} else {
		result.Total = len(result.Rows)
	}
	return result, nil
}

// Health probes the upstream health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
