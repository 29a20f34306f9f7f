package sources

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/pathfinder/internal/retry"
	"github.com/BaSui01/pathfinder/types"
)

type firecrawlMapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit,omitempty"`
}

type firecrawlMapResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
}

type firecrawlScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type firecrawlScrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Firecrawl discovers and scrapes pages through the Firecrawl API.
// Calls share a token bucket; 429 responses are retried with backoff.
type Firecrawl struct {
	*client
	apiKey  string
	limiter *rate.Limiter
	retryer retry.Retryer
}

// NewFirecrawl creates a Firecrawl client limited to cfg.ScrapeRatePerSecond.
func NewFirecrawl(cfg Config, opts ...Option) *Firecrawl {
	c := newClient("firecrawl", cfg.Firecrawl, opts...)
	rps := cfg.ScrapeRatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := max(cfg.ScrapeBurst, 1)
	attempts := max(cfg.ScrapeAttempts, 1)
	return &Firecrawl{
		client:  c,
		apiKey:  cfg.Firecrawl.APIKey,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:   attempts - 1,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
			RetryIf: func(err error) bool {
				return types.IsErrorCode(err, types.ErrRateLimited)
			},
		}, c.logger),
	}
}

// DiscoverPages maps the links of a site.
func (f *Firecrawl) DiscoverPages(ctx context.Context, siteURL string) ([]string, error) {
	resp, err := retry.DoWithResult(ctx, f.retryer, func(ctx context.Context) (firecrawlMapResponse, error) {
		var out firecrawlMapResponse
		err := f.call(ctx, "/v1/map", firecrawlMapRequest{URL: siteURL, Limit: 100}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}
	return resp.Links, nil
}

// Scrape returns the main content of a page as markdown.
func (f *Firecrawl) Scrape(ctx context.Context, pageURL string) (string, error) {
	resp, err := retry.DoWithResult(ctx, f.retryer, func(ctx context.Context) (firecrawlScrapeResponse, error) {
		var out firecrawlScrapeResponse
		err := f.call(ctx, "/v1/scrape", firecrawlScrapeRequest{
			URL:             pageURL,
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
		}, &out)
		return out, err
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		f.logger.Debug("firecrawl scrape returned no content", zap.String("url", pageURL))
		return "", nil
	}
	return resp.Data.Markdown, nil
}

func (f *Firecrawl) call(ctx context.Context, path string, in, out any) error {
	if f.apiKey == "" {
		return types.NewError(types.ErrNotConfigured, "firecrawl api key is not set").WithSource(f.name)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	return f.postJSON(ctx, path, map[string]string{"Authorization": "Bearer " + f.apiKey}, in, out)
}
