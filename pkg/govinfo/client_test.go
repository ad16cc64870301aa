package govinfo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "statute of frauds", req.Query)

		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"count": 1,
			"results": [
				{"packageId": "USCODE-2023-title15", "title": "Commerce and Trade", "collectionCode": "USCODE", "dateIssued": "2023-05-01"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), SearchRequest{Query: "statute of frauds"})
	require.NoError(t, err)
	require.Len(t, resp.Packages, 1)
	assert.Equal(t, "USCODE-2023-title15", resp.Packages[0].PackageID)
	assert.Equal(t, 7, resp.RateRemaining)
}

func TestSearch_EmptyQuery(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.Search(context.Background(), SearchRequest{})
	assert.Error(t, err)
}

func TestSearch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), SearchRequest{Query: "preemption"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}
