// Package courtlistener wraps the CourtListener REST API for opinion search.
package courtlistener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.courtlistener.com/api/rest/v4"

// Client performs opinion searches against the CourtListener API.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes one search call.
type SearchRequest struct {
	Query    string
	Court    string // court identifier filter, e.g. "cal" or "ca9"
	PageSize int
}

// Opinion is a single search hit.
type Opinion struct {
	ID          int    `json:"id"`
	CaseName    string `json:"caseName"`
	Snippet     string `json:"snippet"`
	Court       string `json:"court"`
	CourtID     string `json:"court_id"`
	DateFiled   string `json:"dateFiled"` // YYYY-MM-DD
	AbsoluteURL string `json:"absolute_url"`
}

// SearchResponse carries hits plus the rate headroom the API reported.
type SearchResponse struct {
	Count   int       `json:"count"`
	Results []Opinion `json:"results"`

	// RateRemaining and RateResetAt come from the response headers. A zero
	// RateResetAt means the API did not report one.
	RateRemaining int       `json:"-"`
	RateResetAt   time.Time `json:"-"`
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("courtlistener: unexpected status %d: %s", e.StatusCode, e.Body)
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
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a CourtListener API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
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
		return nil, eris.New("courtlistener: empty query")
	}

	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("type", "o")
	if req.Court != "" {
		q.Set("court", req.Court)
	}
	if req.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(req.PageSize))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "courtlistener: create request")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "courtlistener: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "courtlistener: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "courtlistener: unmarshal response")
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
