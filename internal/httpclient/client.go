// Package httpclient is the retriable GET client shared by every connector.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBackoff    = 1500 * time.Millisecond
	DefaultUserAgent  = "territorial-intelligence-platform/0.1"

	maxRedirects = 10
)

var (
	ErrPayloadTooSmall       = errors.New("payload smaller than expected")
	ErrUnexpectedContentType = errors.New("unexpected content type")
)

// Options configures a Client.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	Backoff           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// RequestOptions overrides client defaults for a single call.
type RequestOptions struct {
	Params url.Values
	// Timeout per attempt; zero keeps the client default.
	Timeout time.Duration
	// MaxRetries overrides the client default when non-nil.
	MaxRetries *int
	// MinBytes rejects shorter bodies without retrying.
	MinBytes int
	// ExpectedContentTypes rejects other media types without retrying.
	ExpectedContentTypes []string
	Accept               string
}

// Payload is a raw response body.
type Payload struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Client performs GET requests with exponential backoff.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a Client. Ambient HTTP(S)_PROXY settings are ignored.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				return nil
			},
		},
		opts:   opts,
		logger: logger,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// GetJSON fetches rawURL and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, ro RequestOptions, out any) error {
	if ro.Accept == "" {
		ro.Accept = "application/json"
	}
	p, err := c.GetBytes(ctx, rawURL, ro)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(p.Body, out); err != nil {
		return errs.E(errs.KindParse, "decode json "+rawURL, err)
	}
	return nil
}

// GetBytes fetches rawURL, retrying network failures and HTTP error statuses.
// After MaxRetries+1 attempts a transient_network error is returned.
func (c *Client) GetBytes(ctx context.Context, rawURL string, ro RequestOptions) (Payload, error) {
	target, err := withParams(rawURL, ro.Params)
	if err != nil {
		return Payload{}, errs.E(errs.KindConfiguration, "build url", err)
	}

	maxRetries := c.opts.MaxRetries
	if ro.MaxRetries != nil && *ro.MaxRetries >= 0 {
		maxRetries = *ro.MaxRetries
	}
	timeout := c.opts.Timeout
	if ro.Timeout > 0 {
		timeout = ro.Timeout
	}

	var (
		out     Payload
		attempt int
	)
	op := func() error {
		attempt++
		p, err := c.do(ctx, target, timeout, ro, attempt)
		if err != nil {
			return err
		}
		out = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("http retry", "url", target, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
	}

	if err := backoff.RetryNotify(op, c.policy(ctx, maxRetries), notify); err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			return Payload{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Payload{}, errs.E(errs.KindTransientNetwork, "GET "+target, ctxErr)
		}
		return Payload{}, errs.E(errs.KindTransientNetwork, fmt.Sprintf("GET %s after %d attempts", target, attempt), err)
	}
	return out, nil
}

// policy waits Backoff·2^n before the n-th retry.
func (c *Client) policy(ctx context.Context, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Backoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

func (c *Client) do(ctx context.Context, target string, timeout time.Duration, ro RequestOptions, attempt int) (Payload, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Payload{}, backoff.Permanent(err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return Payload{}, backoff.Permanent(errs.E(errs.KindConfiguration, "create request", err))
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if ro.Accept != "" {
		req.Header.Set("Accept", ro.Accept)
	}

	start := time.Now()
	c.logger.Debug("http request", "method", http.MethodGet, "url", target, "attempt", attempt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("read body: %w", err)
	}

	c.logger.Debug("http response", "url", target, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(), "bytes", len(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Payload{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if len(ro.ExpectedContentTypes) > 0 && !contentTypeAllowed(contentType, ro.ExpectedContentTypes) {
		return Payload{}, backoff.Permanent(errs.E(errs.KindParse, "GET "+target,
			fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)))
	}
	if ro.MinBytes > 0 && len(body) < ro.MinBytes {
		return Payload{}, backoff.Permanent(errs.E(errs.KindParse, "GET "+target,
			fmt.Errorf("%w: %d < %d bytes", ErrPayloadTooSmall, len(body), ro.MinBytes)))
	}

	return Payload{Body: body, ContentType: contentType, FinalURL: resp.Request.URL.String()}, nil
}

func withParams(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func contentTypeAllowed(got string, expected []string) bool {
	mediaType, _, err := mime.ParseMediaType(got)
	if err != nil {
		mediaType = got
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, e := range expected {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if mediaType == e || strings.Contains(mediaType, e) {
			return true
		}
	}
	return false
}
