package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"marketfeed/config"
	"marketfeed/logger"
)

const maxErrorBodyBytes = 512

// Client is the rate-limited REST client for both the spot and futures
// APIs. At most Concurrency requests are in flight at once; the semaphore
// slot is released before any retry backoff so a waiting request is never
// blocked by one that is sleeping.
type Client struct {
	config     config.BinanceConfig
	httpClient *http.Client
	signer     *Signer
	fapiSigner *Signer
	limiter    *rate.Limiter
	sem        chan struct{}
	cache      *responseCache
	clock      clock.Clock
	log        *logger.Entry
}

func NewClient(cfg config.BinanceConfig, log *logger.Log) *Client {
	return newClient(cfg, log, clock.New())
}

func newClient(cfg config.BinanceConfig, log *logger.Log, clk clock.Clock) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		signer:     NewSigner(cfg.APISecret),
		fapiSigner: NewSigner(cfg.FapiSecret),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
		sem:        make(chan struct{}, cfg.Concurrency),
		cache:      newResponseCache(clk),
		clock:      clk,
		log:        log.WithComponent("binance-client"),
	}
}

// Get performs a GET against base+path and decodes the JSON response into
// out. The body is cached for ttl; a non-positive ttl bypasses the cache
// entirely, so polled endpoints always reach the network.
func (c *Client) Get(ctx context.Context, base, path string, params url.Values, ttl time.Duration, out interface{}) error {
	fullURL := joinURL(base, path, params.Encode())

	key := "GET " + fullURL
	if ttl > 0 {
		if body := c.cache.get(key); body != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return &DecodeError{URL: fullURL, Err: err}
			}
			return nil
		}
	}

	body, err := c.do(ctx, http.MethodGet, fullURL, credentials{})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: fullURL, Err: err}
	}
	c.cache.put(key, body, ttl)
	return nil
}

// Post performs an unauthenticated POST. Responses are never cached.
func (c *Client) Post(ctx context.Context, base, path string, params url.Values, out interface{}) error {
	fullURL := joinURL(base, path, params.Encode())

	body, err := c.do(ctx, http.MethodPost, fullURL, credentials{})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: fullURL, Err: err}
	}
	return nil
}

// credentials selects the key pair for base: futures endpoints use the
// FAPI pair, everything else the spot pair.
type credentials struct {
	key    string
	signer *Signer
}

func (c *Client) credentialsFor(base string) credentials {
	if c.config.FapiURL != "" && strings.HasPrefix(base, c.config.FapiURL) {
		return credentials{key: c.config.FapiKey, signer: c.fapiSigner}
	}
	return credentials{key: c.config.APIKey, signer: c.signer}
}

// Signed performs an authenticated request. The query is stamped with the
// current epoch-millis timestamp and signed per attempt, so a retried
// request never reuses a stale signature.
func (c *Client) Signed(ctx context.Context, method, base, path string, params url.Values, out interface{}) error {
	creds := c.credentialsFor(base)
	if creds.key == "" || len(creds.signer.secret) == 0 {
		return &ConfigurationError{Reason: "signed request requires api_key and api_secret"}
	}

	var body []byte
	err := c.retry(ctx, func() error {
		now := c.clock.Now().UnixMilli()
		query := creds.signer.SignedQuery(params, now)
		fullURL := joinURL(base, path, query)

		var attemptErr error
		body, attemptErr = c.doOnce(ctx, method, fullURL, creds)
		return attemptErr
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: base + path, Err: err}
	}
	return nil
}

// do runs one request through the retry policy.
func (c *Client) do(ctx context.Context, method, fullURL string, creds credentials) ([]byte, error) {
	var body []byte
	err := c.retry(ctx, func() error {
		var attemptErr error
		body, attemptErr = c.doOnce(ctx, method, fullURL, creds)
		return attemptErr
	})
	return body, err
}

func (c *Client) retry(ctx context.Context, attempt func() error) error {
	return retry.Do(
		attempt,
		retry.Attempts(uint(c.config.Retry.MaxAttempts)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.DelayType(c.backoffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithFields(logger.Fields{
				"attempt": n + 1,
				"error":   err.Error(),
			}).Warn("Retrying request after failure")
		}),
	)
}

// backoffDelay implements the retry schedule: honor a server Retry-After
// when present, otherwise double from the base delay up to the cap.
func (c *Client) backoffDelay(n uint, err error, _ *retry.Config) time.Duration {
	if hint, ok := RetryAfterHint(err); ok {
		return hint
	}
	delay := c.config.Retry.BaseDelay << n
	if delay > c.config.Retry.MaxDelay || delay <= 0 {
		delay = c.config.Retry.MaxDelay
	}
	return delay
}

// doOnce performs a single HTTP attempt. The concurrency slot is held only
// for the duration of the attempt itself.
func (c *Client) doOnce(ctx context.Context, method, fullURL string, creds credentials) ([]byte, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &NetworkError{Op: method, URL: fullURL, Err: ctx.Err()}
	}
	defer func() { <-c.sem }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: method, URL: fullURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid request %s %s: %v", method, fullURL, err)}
	}
	if creds.key != "" {
		req.Header.Set("X-MBX-APIKEY", creds.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method, URL: fullURL, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{
			URL:        fullURL,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &HTTPStatusError{
			URL:        fullURL,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBodyBytes),
		}
	}

	logger.IncrementRestFetch(len(body))
	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func joinURL(base, path, query string) string {
	full := strings.TrimRight(base, "/") + path
	if query != "" {
		full += "?" + query
	}
	return full
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
