package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"rss-watcher/internal/cache"
)

const (
	DefaultConcurrency  = 20
	DefaultTimeout      = 25 * time.Second
	DefaultUserAgent    = "rss-watcher/1.0"
	DefaultMaxBodyBytes = 10 << 20
)

type FetcherOptions struct {
	Concurrency  int
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// Request is one endpoint to fetch along with its stored validators.
type Request struct {
	Endpoint string
	Prev     cache.Record
}

// Result is the outcome of one Request. Record is what the cache should hold
// for the endpoint once the caller commits it. Exactly one of Body,
// NotModified and Err describes the outcome.
type Result struct {
	Endpoint    string
	Body        []byte
	Record      cache.Record
	NotModified bool
	Err         error
}

// FetchError describes a failed fetch: transport error, timeout or an
// unexpected HTTP status.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch ran out of time.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Fetcher performs conditional GETs with bounded concurrency. It never
// writes to the cache; results are handed back for the caller to commit.
type Fetcher struct {
	client *http.Client
	opts   FetcherOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewFetcher(client *http.Client, opts FetcherOptions, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// FetchAll fetches every request, at most Concurrency at a time, and returns
// results in request order. A failing endpoint never affects its siblings.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = f.Fetch(ctx, req)
			return nil
		})
	}
	g.Wait()

	return results
}

// Fetch performs a single conditional GET bounded by the per-request timeout.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	logger := f.logger.With("feed", req.Endpoint)

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	body, resp, err := f.get(ctx, req)
	at := f.now().UTC()

	if err != nil {
		logger.Debug("Fetch failed", "error", err)
		return Result{
			Endpoint: req.Endpoint,
			Record:   req.Prev.Touched(at, cache.StatusError, err.Error()),
			Err:      err,
		}
	}

	if resp.StatusCode == http.StatusNotModified {
		logger.Debug("Feed not modified")
		return Result{
			Endpoint:    req.Endpoint,
			Record:      req.Prev.Touched(at, cache.StatusNotModified, ""),
			NotModified: true,
		}
	}

	logger.Debug("Feed fetched", "bytes", len(body), "status", resp.StatusCode, "conditional", req.Prev.HasValidators())
	return Result{
		Endpoint: req.Endpoint,
		Body:     body,
		Record: cache.Record{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    at,
			Status:       cache.StatusOK,
			LastSuccess:  at,
		},
	}
}

// get returns the body for 2xx responses and a nil body for 304. Any other
// outcome is a *FetchError.
func (f *Fetcher) get(ctx context.Context, req Request) ([]byte, *http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Endpoint, nil)
	if err != nil {
		return nil, nil, &FetchError{Endpoint: req.Endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	httpReq.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8")
	if req.Prev.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.Prev.ETag)
	}
	if req.Prev.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.Prev.LastModified)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, nil, &FetchError{Endpoint: req.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, resp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &FetchError{
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, nil, &FetchError{Endpoint: req.Endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, nil, &FetchError{Endpoint: req.Endpoint, Err: fmt.Errorf("response body exceeds %d bytes", f.opts.MaxBodyBytes)}
	}

	return body, resp, nil
}
