// Package livedata fetches data from external sources and caches the results.
package livedata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxBodyBytes = 5 << 20
	DefaultUserAgent    = "blackhole-agents/1.0"

	minHostRate = 0.2
	maxHostRate = 5.0
)

// ErrBodyTooLarge is returned when a response exceeds the fetcher's body cap
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Response is a fully read HTTP response
type Response struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

// FetcherOptions configures a Fetcher. Zero values select defaults.
type FetcherOptions struct {
	Client        *http.Client
	UserAgent     string
	MaxBodyBytes  int64
	RatePerSecond float64
	// AllowPrivate disables the private-address guard. Tests use it to reach httptest servers.
	AllowPrivate bool
}

// Fetcher performs rate-limited GET requests. Each host gets its own limiter.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBody      int64
	rate         rate.Limit
	allowPrivate bool
	limiters     sync.Map // host -> *rate.Limiter
}

// NewFetcher creates a fetcher
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:       opts.Client,
		userAgent:    opts.UserAgent,
		maxBody:      opts.MaxBodyBytes,
		rate:         rate.Limit(opts.RatePerSecond),
		allowPrivate: opts.AllowPrivate,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 10 * time.Second}
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.maxBody <= 0 {
		f.maxBody = DefaultMaxBodyBytes
	}
	if f.rate <= 0 {
		f.rate = 2
	}
	return f
}

// UserAgent returns the User-Agent sent with every request
func (f *Fetcher) UserAgent() string { return f.userAgent }

// Get fetches rawURL and reads the whole body
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	u, err := f.check(rawURL)
	if err != nil {
		return nil, err
	}
	if err := f.limiter(u.Host, 0).Wait(ctx); err != nil {
		return nil, err
	}
	return f.do(ctx, u)
}

// SetCrawlDelay slows the limiter for host to one request per delay
func (f *Fetcher) SetCrawlDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	f.limiter(host, delay).SetLimit(hostRate(delay))
}

func (f *Fetcher) check(rawURL string) (*url.URL, error) {
	if !f.allowPrivate {
		if err := ValidatePublicURL(rawURL); err != nil {
			return nil, err
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL must have a host")
	}
	return u, nil
}

func (f *Fetcher) do(ctx context.Context, u *url.URL) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.Redacted(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, ErrBodyTooLarge
	}

	return &Response{
		URL:         u,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *Fetcher) limiter(host string, delay time.Duration) *rate.Limiter {
	host = strings.ToLower(host)
	if l, ok := f.limiters.Load(host); ok {
		return l.(*rate.Limiter)
	}
	r := f.rate
	if delay > 0 {
		r = hostRate(delay)
	}
	actual, _ := f.limiters.LoadOrStore(host, rate.NewLimiter(r, 1))
	return actual.(*rate.Limiter)
}

func hostRate(delay time.Duration) rate.Limit {
	return rate.Limit(min(max(1/delay.Seconds(), minHostRate), maxHostRate))
}
