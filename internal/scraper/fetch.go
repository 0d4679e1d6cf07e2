package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/metrics"
)

const (
	DefaultUserAgent    = "club-sync/1.0 (github.com/pfrederiksen/club-sync)"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 5 << 20
	snippetLength       = 512
)

// FetchOptions configures a Fetcher. Zero values pick the defaults.
type FetchOptions struct {
	Timeout         time.Duration
	UserAgent       string
	RatePerSecond   float64 // zero disables rate limiting
	Burst           int
	MaxRetries      uint64
	MaxBodyBytes    int64
	InitialInterval time.Duration // first backoff delay
	Client          *http.Client
	Metrics         *metrics.Metrics
}

// Fetcher retrieves documents over HTTP(S) or from the local filesystem
type Fetcher struct {
	client          *http.Client
	userAgent       string
	limiter         *rate.Limiter
	maxRetries      uint64
	maxBody         int64
	initialInterval time.Duration
	metrics         *metrics.Metrics
}

// FetchError describes a failed fetch. Snippet holds the start of the
// response body when the server answered with an error status.
type FetchError struct {
	URL        string
	StatusCode int
	Snippet    string
	Err        error

	final bool
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Diagnostics returns the body snippet and status of the failed response
func (e *FetchError) Diagnostics() string {
	var b strings.Builder
	fmt.Fprintf(&b, "url: %s\n", e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "status: %d\n", e.StatusCode)
	}
	if e.Snippet != "" {
		fmt.Fprintf(&b, "body: %s\n", e.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Retryable reports whether another attempt could succeed
func (e *FetchError) Retryable() bool {
	if e.final {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewFetcher creates a Fetcher
func NewFetcher(opts FetchOptions) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	initial := opts.InitialInterval
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Fetcher{
		client:          client,
		userAgent:       userAgent,
		limiter:         limiter,
		maxRetries:      opts.MaxRetries,
		maxBody:         maxBody,
		initialInterval: initial,
		metrics:         opts.Metrics,
	}
}

// Fetch returns the body of rawURL. http and https URLs are retried with
// exponential backoff on network errors and 5xx responses; 4xx responses
// fail immediately. file:// URLs are read from disk.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("parsing url: %w", err)}
	}

	switch u.Scheme {
	case "file":
		return f.readFile(u)
	case "http", "https":
	default:
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, f.maxRetries), ctx)

	var body []byte
	operation := func() error {
		data, err := f.get(ctx, rawURL)
		if err == nil {
			body = data
			return nil
		}
		var fe *FetchError
		if errors.As(err, &fe) && !fe.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.metrics.FetchResult("retry")
		logger.Debug("Retrying fetch", logger.Fields{
			"url":   rawURL,
			"wait":  wait.String(),
			"cause": err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		f.metrics.FetchResult("error")
		return nil, err
	}
	f.metrics.FetchResult("ok")
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("creating request: %w", err), final: true}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLength))
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Snippet:    strings.TrimSpace(string(snippet)),
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	return f.readLimited(rawURL, resp.Body)
}

func (f *Fetcher) readFile(u *url.URL) ([]byte, error) {
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		path = u.Host + u.Path
	}
	file, err := os.Open(path)
	if err != nil {
		f.metrics.FetchResult("error")
		return nil, &FetchError{URL: u.String(), Err: err}
	}
	defer file.Close()

	data, err := f.readLimited(u.String(), file)
	if err != nil {
		f.metrics.FetchResult("error")
		return nil, err
	}
	f.metrics.FetchResult("ok")
	return data, nil
}

func (f *Fetcher) readLimited(rawURL string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(data)) > f.maxBody {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", f.maxBody), final: true}
	}
	return data, nil
}
