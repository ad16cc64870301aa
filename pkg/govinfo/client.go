// Package govinfo wraps the GPO govinfo API for statutory and regulatory
// search.
package govinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.govinfo.gov"

// Client performs package searches against the govinfo API.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the body for POST /search.
type SearchRequest struct {
	Query    string `json:"query"`
	PageSize int    `json:"pageSize,omitempty"`
	OffsetMark string `json:"offsetMark,omitempty"`
}

// Package is a single search hit (a statute section, regulation, or similar
// published granule).
type Package struct {
	PackageID    string `json:"packageId"`
	Title        string `json:"title"`
	Collection   string `json:"collectionCode"`
	DateIssued   string `json:"dateIssued"` // YYYY-MM-DD
	GovernmentAuthor string `json:"governmentAuthor,omitempty"`
	DownloadURL  string `json:"download,omitempty"`
}

// SearchResponse carries hits plus rate headroom from the response headers.
type SearchResponse struct {
	Count    int       `json:"count"`
	Packages []Package `json:"results"`

	RateRemaining int       `json:"-"`
	RateResetAt   time.Time `json:"-"`
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("govinfo: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a govinfo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, eris.New("govinfo: empty query")
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "govinfo: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "govinfo: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "govinfo: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "govinfo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "govinfo: unmarshal response")
	}

	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			result.RateRemaining = n
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			result.RateResetAt = time.Unix(sec, 0)
		}
	}

	return &result, nil
}
