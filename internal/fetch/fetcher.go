// Package fetch performs bounded network retrieval of crawl targets.
// Every failure mode is classified into an Error kind; retry policy lives
// with the caller so backoff state stays centrally visible.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/logger"
)

// maxRedirects bounds redirect chains per request.
const maxRedirects = 10

// Document is a successfully fetched response.
type Document struct {
	URL         string
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// Fetcher retrieves URLs with a hard per-request timeout, a response size
// cap, robots.txt compliance, and per-host rate limiting. It never retries
// internally.
type Fetcher struct {
	client        *http.Client
	log           logger.Interface
	userAgent     string
	timeout       time.Duration
	maxBytes      int64
	respectRobots bool
	robots        *RobotsChecker
	limiter       *hostLimiter
}

// New creates a fetcher from configuration.
func New(cfg config.FetcherConfig, log logger.Interface) *Fetcher {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:        client,
		log:           log.WithComponent("fetcher"),
		userAgent:     cfg.UserAgent,
		timeout:       cfg.Timeout,
		maxBytes:      cfg.MaxResponseSize,
		respectRobots: cfg.RespectRobots,
		robots:        NewRobotsChecker(client, cfg.UserAgent, 0),
		limiter:       newHostLimiter(cfg.HostRatePerSec),
	}
}

// Fetch retrieves rawURL. On failure the returned error is always a *Error
// with a classified kind.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, &Error{Kind: KindNetwork, URL: rawURL, cause: fmt.Errorf("invalid url")}
	}

	if waitErr := f.limiter.Wait(ctx, parsed.Host); waitErr != nil {
		return nil, classify(rawURL, waitErr)
	}

	if f.respectRobots {
		allowed, robotsErr := f.robots.IsAllowed(ctx, rawURL)
		if robotsErr != nil {
			return nil, classify(rawURL, robotsErr)
		}
		if !allowed {
			return nil, &Error{Kind: KindRobotsBlocked, URL: rawURL}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, reqErr := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, http.NoBody)
	if reqErr != nil {
		return nil, &Error{Kind: KindNetwork, URL: rawURL, cause: reqErr}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, doErr := f.client.Do(req)
	if doErr != nil {
		// Distinguish caller cancellation from our own deadline.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, &Error{Kind: KindCancelled, URL: rawURL, cause: doErr}
		}
		return nil, classify(rawURL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{Kind: KindHTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	// Read one byte past the cap to detect oversize responses.
	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return nil, classify(rawURL, readErr)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &Error{Kind: KindTooLarge, URL: rawURL}
	}

	return &Document{
		URL:         rawURL,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now(),
	}, nil
}

// TestConnection checks reachability of a URL for the configuration wizard.
// Redirects are followed, so reachable means the final response was 2xx.
func (f *Fetcher) TestConnection(ctx context.Context, rawURL string) error {
	_, err := f.Fetch(ctx, rawURL)
	return err
}

// classify maps a transport error to a fetch Error kind.
func classify(rawURL string, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, URL: rawURL, cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, URL: rawURL, cause: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNSFailure, URL: rawURL, cause: err}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Kind: KindConnectionRefused, URL: rawURL, cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, cause: err}
	}

	return &Error{Kind: KindNetwork, URL: rawURL, cause: err}
}
