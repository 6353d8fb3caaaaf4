// Package salesforce is a thin wrapper for making authenticated, read-only
// calls to the Salesforce REST API: SOQL queries and SOSL searches. It is
// only ever handed queries that have already passed the safety validator.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
)

// APIVersionNumber sets out the currently supported Salesforce API used for
// this client.
const APIVersionNumber = "v65.0"

// Client is a wrapper for making authenticated calls to the Salesforce API.
type Client struct {
	httpClient  *http.Client
	instanceURL string
	apiVersion  string
	log         *slog.Logger
}

// NewClient returns a Salesforce client for the provided instance URL and
// access token. It is the responsibility of the caller to ensure the token
// is valid (refreshed where necessary).
func NewClient(ctx context.Context, instanceURL, accessToken string, logger *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &Client{
		httpClient:  oauth2.NewClient(ctx, ts),
		instanceURL: instanceURL,
		apiVersion:  APIVersionNumber,
		log:         logger,
	}
}

// requestParams holds the single query parameter taken by the query and
// search resources.
type requestParams struct {
	Q string `url:"q"`
}

// Query executes an approved SOQL query, following pagination until done.
//
// Salesforce provides at most 2000 records in a batch; subsequent pages are
// reached through the response's nextRecordsUrl until done is true. See
// https://developer.salesforce.com/docs/atlas.en-us.api_rest.meta/api_rest/dome_query.htm
func (c *Client) Query(ctx context.Context, soql string) (*QueryResult, error) {
	params, err := query.Values(requestParams{Q: soql})
	if err != nil {
		return nil, fmt.Errorf("could not encode query parameters: %w", err)
	}
	requestURL := fmt.Sprintf("%s/services/data/%s/query?%s", c.instanceURL, c.apiVersion, params.Encode())

	result := &QueryResult{}
	var pageNo int
	for {
		pageNo++
		c.log.Debug("soql query", "page", pageNo, "url", requestURL)

		req, err := c.newRequest(ctx, "GET", requestURL)
		if err != nil {
			return nil, fmt.Errorf("query request error page %d: %w", pageNo, err)
		}

		var page soqlPage
		if err := c.do(req, &page); err != nil {
			return nil, fmt.Errorf("query error page %d: %w", pageNo, err)
		}
		result.TotalSize = page.TotalSize
		result.Records = append(result.Records, page.Records...)
		if page.Done || page.NextRecordsURL == "" {
			break
		}
		requestURL, err = url.JoinPath(c.instanceURL, page.NextRecordsURL)
		if err != nil {
			return nil, fmt.Errorf("url construction error for page %d (%s): %w", pageNo+1, page.NextRecordsURL, err)
		}
	}
	return result, nil
}

// Search executes a SOSL search.
func (c *Client) Search(ctx context.Context, sosl string) (*SearchResult, error) {
	params, err := query.Values(requestParams{Q: sosl})
	if err != nil {
		return nil, fmt.Errorf("could not encode search parameters: %w", err)
	}
	requestURL := fmt.Sprintf("%s/services/data/%s/search?%s", c.instanceURL, c.apiVersion, params.Encode())
	c.log.Debug("sosl search", "url", requestURL)

	req, err := c.newRequest(ctx, "GET", requestURL)
	if err != nil {
		return nil, fmt.Errorf("search request error: %w", err)
	}

	var result SearchResult
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	return &result, nil
}

// newRequest is a helper to create a new HTTP request with common headers.
func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do executes an HTTP request and decodes the JSON response, converting
// non-2xx responses into an *APIError.
func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body)
	}

	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
