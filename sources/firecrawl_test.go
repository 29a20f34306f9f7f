package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/internal/retry"
	"github.com/BaSui01/pathfinder/types"
)

func firecrawlConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.Firecrawl = ServiceConfig{APIKey: "fc", BaseURL: baseURL, Timeout: time.Second}
	cfg.ScrapeRatePerSecond = 100
	return cfg
}

// fastRetries keeps the 429 backoff short in tests.
func fastRetries(f *Firecrawl, retries int) {
	f.retryer = retry.NewBackoffRetryer(&retry.RetryPolicy{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		RetryIf: func(err error) bool {
			return types.IsErrorCode(err, types.ErrRateLimited)
		},
	}, zap.NewNop())
}

func TestFirecrawl_DiscoverAndScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fc", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/map":
			var req firecrawlMapRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "https://bowl.example", req.URL)
			_, _ = w.Write([]byte(`{"success": true, "links": ["https://bowl.example/pricing", "https://bowl.example/about"]}`))
		case "/v1/scrape":
			var req firecrawlScrapeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"markdown"}, req.Formats)
			assert.True(t, req.OnlyMainContent)
			_, _ = w.Write([]byte(`{"success": true, "data": {"markdown": "# Pricing\nLane: $40/hr"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFirecrawl(firecrawlConfig(srv.URL))
	links, err := f.DiscoverPages(context.Background(), "https://bowl.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bowl.example/pricing", "https://bowl.example/about"}, links)

	text, err := f.Scrape(context.Background(), "https://bowl.example/pricing")
	require.NoError(t, err)
	assert.Equal(t, "# Pricing\nLane: $40/hr", text)
}

func TestFirecrawl_UnsuccessfulScrapeIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	text, err := NewFirecrawl(firecrawlConfig(srv.URL)).Scrape(context.Background(), "https://x.example")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestFirecrawl_RetriesRateLimits(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"markdown": "ok"}}`))
	}))
	defer srv.Close()

	f := NewFirecrawl(firecrawlConfig(srv.URL))
	fastRetries(f, 2)

	text, err := f.Scrape(context.Background(), "https://x.example")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFirecrawl_GivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewFirecrawl(firecrawlConfig(srv.URL))
	fastRetries(f, 2)

	_, err := f.Scrape(context.Background(), "https://x.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimited))
	assert.Equal(t, int32(3), hits.Load())
}

func TestFirecrawl_ServerErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFirecrawl(firecrawlConfig(srv.URL))
	fastRetries(f, 2)

	_, err := f.DiscoverPages(context.Background(), "https://x.example")
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.Equal(t, int32(1), hits.Load())
}
