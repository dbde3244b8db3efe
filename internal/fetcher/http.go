package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const geoJSONAccept = "application/geo+json, application/json;q=0.9, */*;q=0.5"

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration // whole-request timeout, body included
	MaxRetries  int           // retries after the first attempt; 0 disables retrying
	BackoffBase time.Duration // first retry delay, doubled per attempt up to 30x
	// RatePerHost limits requests per second to any single host.
	RatePerHost rate.Limit
	Burst       int
}

// HTTPFetcher downloads over HTTP(S). 429 and 5xx responses and transport
// errors are retried with jittered exponential backoff; a Retry-After header
// overrides the computed delay.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling in defaults for zero options.
// MaxRetries is taken as given.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "geostream/1.0"
	}
	if opts.RatePerHost == 0 {
		opts.RatePerHost = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the limiter shared by every request to rawURL's host.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	var host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(f.opts.RatePerHost, f.opts.Burst)
	f.limiters[host] = lim
	return lim
}

// retryable reports whether a response status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// retryAfter parses a Retry-After header given in seconds. Zero means absent
// or unparseable.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (f *HTTPFetcher) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiterFor(req.URL.String())
	log := zap.L().With(
		zap.String("component", "fetcher.http"),
		zap.String("url", req.URL.Redacted()),
	)

	attempts := f.opts.MaxRetries + 1
	var lastErr error
	for attempt := range attempts {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "http: rate limiter wait")
		}

		var wait time.Duration
		resp, err := f.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
			log.Warn("request failed", zap.Int("attempt", attempt+1), zap.Error(err))
		case retryable(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http: status %d", resp.StatusCode)
			log.Warn("server refused request",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			wait = retryAfter(resp.Header)
		default:
			return resp, nil
		}

		if attempt == attempts-1 {
			break
		}
		if wait > 0 {
			sleep(ctx, wait)
		} else {
			f.backoff(ctx, attempt)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, eris.Wrapf(lastErr, "all retries exhausted after %d attempts", attempts)
}

// backoff sleeps BackoffBase*2^attempt, capped at 30x the base, plus up to 50%
// jitter, or until ctx is done.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	d := f.opts.BackoffBase << min(attempt, 5)
	if ceiling := 30 * f.opts.BackoffBase; d > ceiling || d <= 0 {
		d = ceiling
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Download GETs rawURL and returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if f.opts.MaxRetries < 0 {
		return nil, eris.Errorf("http: max retries must be >= 0, got %d", f.opts.MaxRetries)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", geoJSONAccept)

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: download %s", req.URL.Redacted())
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, req.URL.Redacted())
	}
	return resp.Body, nil
}

// DownloadToFile writes the body of rawURL to path and returns the bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}

func writeFile(path string, r io.Reader) (n int64, err error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", path)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "fetcher: close %s", path)
		}
	}()

	n, err = io.Copy(file, r)
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}
