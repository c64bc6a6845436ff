// Package oracle implements the HTTP client for the football result feed
// service that markets are resolved against.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
)

// Client is the REST client for the result feed API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new result feed client.
//
// baseURL is the API root, e.g. "https://feeds.example.com/v1".
// apiKey may be empty when the feed does not require authentication.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// feedResult is the wire shape of a single feed result document.
type feedResult struct {
	FeedID    string `json:"feed_id"`
	Result    *int64 `json:"result"`
	UpdatedAt int64  `json:"updated_at"`
}

// Result fetches the current raw result for the given feed.
//
// The raw value is returned as published, including the pending sentinel.
// Interpretation of the value is the caller's concern.
func (c *Client) Result(ctx context.Context, feedID string) (domain.MatchResult, error) {
	path := fmt.Sprintf("/feeds/%s/result", url.PathEscape(feedID))

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("oracle: get result %s: %w", feedID, err)
	}

	var resp feedResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MatchResult{}, fmt.Errorf("oracle: decode result %s: %w", feedID, domain.ErrInvalidOracleData)
	}
	if resp.FeedID == "" || resp.Result == nil {
		return domain.MatchResult{}, fmt.Errorf("oracle: incomplete result document for %s: %w", feedID, domain.ErrInvalidOracleData)
	}

	return domain.MatchResult{
		FeedID: resp.FeedID,
		Value:  *resp.Result,
	}, nil
}

// doRequest builds, sends, and reads an HTTP request against the feed API.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	fullURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrOracleUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrInvalidFeed
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", domain.ErrOracleUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrInvalidOracleData, resp.StatusCode, respBody)
	}

	return respBody, nil
}

var _ domain.Oracle = (*Client)(nil)
