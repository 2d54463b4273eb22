package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// defaultUserAgent identifies us as a regular browser; the source serves a
// different (script-hostile) page to obvious bots.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultPageDelay is the minimum pause between successive requests to the
// source. The rate limit is per-source, which is why pages are fetched
// sequentially rather than in parallel.
const DefaultPageDelay = 2 * time.Second

// DefaultFetchTimeout bounds a single page request.
const DefaultFetchTimeout = 30 * time.Second

// FetchError reports a failed page fetch. Status is zero when the request
// never produced a response (transport error, timeout).
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetcherConfig configures the source fetcher.
type FetcherConfig struct {
	// BaseURL is the listing base, e.g. https://security.snyk.io/vuln/pip.
	BaseURL string

	// Delay is the minimum pause between requests to the source domain.
	Delay time.Duration

	// Timeout bounds each request.
	Timeout time.Duration

	// UserAgent overrides the default browser user agent.
	UserAgent string
}

// Fetcher retrieves listing and detail pages from the source. It is built
// on colly, whose per-domain limit rule enforces the fetch delay for every
// request regardless of which call path issued it.
//
// Fetcher is safe for concurrent use, but the ingestion pipeline fetches
// sequentially; concurrent callers still share the per-domain delay.
type Fetcher struct {
	collector *colly.Collector
	base      *url.URL
	logger    *slog.Logger
}

const captureKey = "capture"

type fetchCapture struct {
	body   []byte
	status int
	err    error
}

// NewFetcher creates a Fetcher for the configured source.
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultPageDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.Timeout)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: cfg.Delay}); err != nil {
		return nil, fmt.Errorf("configuring fetch delay: %w", err)
	}

	c.OnResponse(func(r *colly.Response) {
		if cap, ok := r.Ctx.GetAny(captureKey).(*fetchCapture); ok {
			cap.status = r.StatusCode
			cap.body = r.Body
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r == nil {
			return
		}
		if cap, ok := r.Ctx.GetAny(captureKey).(*fetchCapture); ok {
			cap.err = err
			cap.status = r.StatusCode
		}
	})

	return &Fetcher{collector: c, base: base, logger: logger}, nil
}

// Page fetches one listing page by number.
func (f *Fetcher) Page(ctx context.Context, page int) ([]byte, error) {
	pageURL := fmt.Sprintf("%s?page=%d", f.base.String(), page)
	return f.get(ctx, pageURL)
}

// Detail fetches a per-record detail page by its source-relative path.
func (f *Fetcher) Detail(ctx context.Context, path string) ([]byte, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing detail path %q: %w", path, err)
	}
	return f.get(ctx, f.base.ResolveReference(ref).String())
}

// get issues one GET through the shared collector. The collector runs
// synchronously, so the limit rule's delay has elapsed by the time Request
// returns. Cancellation is checked up front; an in-flight request is
// bounded by the collector's request timeout rather than the context.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cap := &fetchCapture{}
	cctx := colly.NewContext()
	cctx.Put(captureKey, cap)

	reqErr := f.collector.Request("GET", rawURL, nil, cctx, nil)
	if cap.err != nil || reqErr != nil {
		err := cap.err
		if err == nil {
			err = reqErr
		}
		f.logger.Error("page fetch failed", "url", rawURL, "status", cap.status, "error", err)
		return nil, &FetchError{URL: rawURL, Status: cap.status, Err: err}
	}
	if cap.status != 0 && (cap.status < 200 || cap.status > 299) {
		f.logger.Error("page fetch returned non-success status", "url", rawURL, "status", cap.status)
		return nil, &FetchError{URL: rawURL, Status: cap.status}
	}

	f.logger.Debug("page fetched", "url", rawURL, "bytes", len(cap.body))
	return cap.body, nil
}
