// Package sharedhttp builds the single HTTP client the rest of the engine
// shares (C1): one configured *http.Client with retry middleware and proxy
// policy resolution, rebuilt wholesale whenever the proxy config changes.
package sharedhttp

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"hitomidl/internal/domain"

	"github.com/avast/retry-go"
)

const userAgent = "hitomidl"

// Client is the shared, rebuildable HTTP client. It is safe for concurrent
// use; Rebuild swaps the underlying *http.Client atomically so in-flight
// requests, which hold their own reference, run to completion unaffected.
type Client struct {
	mu sync.RWMutex
	c  *http.Client
}

func New(cfg *domain.Config) *Client {
	c := &Client{}
	c.Rebuild(cfg)
	return c
}

// Rebuild replaces the underlying client with one reflecting the current
// proxy policy, per §4.1 ("When proxyMode changes the client is rebuilt").
func (c *Client) Rebuild(cfg *domain.Config) {
	transport := &http.Transport{
		Proxy: proxyFunc(cfg),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	newClient := &http.Client{
		Timeout:   60 * time.Second,
		Transport: transport,
	}

	c.mu.Lock()
	c.c = newClient
	c.mu.Unlock()
}

func (c *Client) current() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.c
}

func proxyFunc(cfg *domain.Config) func(*http.Request) (*url.URL, error) {
	switch domain.ParseProxyMode(cfg.ProxyMode) {
	case domain.ProxyModeNoProxy:
		return func(*http.Request) (*url.URL, error) { return nil, nil }
	case domain.ProxyModeCustom:
		host := cfg.ProxyHost
		if cfg.ProxyPort != 0 {
			host = net.JoinHostPort(cfg.ProxyHost, strconv.Itoa(cfg.ProxyPort))
		}
		u := &url.URL{Scheme: "http", Host: host}
		return func(*http.Request) (*url.URL, error) { return u, nil }
	default:
		return http.ProxyFromEnvironment
	}
}

// Do performs a request through the current client with retry middleware:
// retries on transport errors and 5xx, exponential backoff base 500ms,
// factor 2, up to 3 attempts, with jitter (§4.1).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var lastStatus int

	err := retry.Do(func() error {
		r, err := c.current().Do(req)
		if err != nil {
			return err
		}
		lastStatus = r.StatusCode

		if err := CheckStatusCode(r.StatusCode); err != nil {
			r.Body.Close()
			return err
		}

		resp = r
		return nil
	},
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(4*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.Attempts(3),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(req.Context()),
	)
	if err != nil {
		if lastStatus == http.StatusNotFound || lastStatus == http.StatusForbidden {
			return nil, domain.NewNotFoundError(fmt.Sprintf("request to %s returned status code %d", req.URL.Host, lastStatus), err)
		}
		return nil, domain.NewNetworkError(fmt.Sprintf("request to %s failed", req.URL.Host), err)
	}

	return resp, nil
}

// Get issues a GET with the given context and User-Agent header.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewNetworkError("could not build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	return c.Do(req)
}

// GetRange issues a GET for the half-open byte range [start, end), used by
// the B-tree and posting-list readers in C4.
func (c *Client) GetRange(ctx context.Context, rawURL string, start, end int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewNetworkError("could not build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	return c.Do(req)
}

// GetJSON issues a GET and decodes the body as JSON into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return domain.NewParseError(fmt.Sprintf("malformed JSON from %s", rawURL), err)
	}

	return nil
}

// CheckStatusCode classifies a status code into the retry policy of §4.1/§7:
// 2xx succeeds, 404/403 are unrecoverable for the middleware (callers
// handle the image-specific reload+retry themselves), 5xx is retryable.
func CheckStatusCode(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusNotFound || statusCode == http.StatusForbidden:
		return retry.Unrecoverable(domain.NewNotFoundError(fmt.Sprintf("status code %d", statusCode), nil))
	case statusCode >= 500:
		return fmt.Errorf("server error: status code %d - retrying", statusCode)
	default:
		return retry.Unrecoverable(fmt.Errorf("unexpected status code %d", statusCode))
	}
}
