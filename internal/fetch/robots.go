package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	defaultRobotsCacheTTL = 24 * time.Hour
	robotsTxtPath         = "/robots.txt"
	maxRobotsBodyBytes    = 512 * 1024
)

// RobotsChecker checks and caches robots.txt rules per host. Missing or
// errored robots.txt results in allow-all, which is standard practice.
type RobotsChecker struct {
	httpClient *http.Client
	userAgent  string
	cacheTTL   time.Duration

	mu    sync.RWMutex
	cache map[string]*robotsEntry // keyed by host
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

// NewRobotsChecker creates a new RobotsChecker.
func NewRobotsChecker(httpClient *http.Client, userAgent string, cacheTTL time.Duration) *RobotsChecker {
	if cacheTTL == 0 {
		cacheTTL = defaultRobotsCacheTTL
	}
	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  userAgent,
		cacheTTL:   cacheTTL,
		cache:      make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether the URL may be fetched under the host's
// robots.txt, fetching and caching the file as needed.
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	entry := r.cached(host)
	if entry == nil {
		entry = r.fetchAndCache(ctx, host, parsed.Scheme)
	}

	if entry.allowAll {
		return true, nil
	}
	return entry.data.TestAgent(parsed.Path, r.userAgent), nil
}

func (r *RobotsChecker) cached(host string) *robotsEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[host]
	if !ok || time.Since(entry.fetchedAt) > r.cacheTTL {
		return nil
	}
	return entry
}

func (r *RobotsChecker) fetchAndCache(ctx context.Context, host, scheme string) *robotsEntry {
	if scheme == "" {
		scheme = "https"
	}

	entry := &robotsEntry{fetchedAt: time.Now(), allowAll: true}

	body, statusCode, err := r.fetchRobots(ctx, scheme+"://"+host+robotsTxtPath)
	if err == nil && statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		if data, parseErr := robotstxt.FromBytes(body); parseErr == nil {
			entry.data = data
			entry.allowAll = false
		}
	}

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()

	return entry
}

func (r *RobotsChecker) fetchRobots(ctx context.Context, robotsURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
