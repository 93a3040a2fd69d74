package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/fetch"
	"github.com/sitewatch/sitewatch/internal/logger"
)

func newFetcher(t *testing.T, mutate func(*config.FetcherConfig)) *fetch.Fetcher {
	t.Helper()
	cfg := config.FetcherConfig{
		Timeout:         2 * time.Second,
		MaxResponseSize: 1 << 20,
		UserAgent:       "sitewatch-test/1.0",
		HostRatePerSec:  1000,
		RespectRobots:   false,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return fetch.New(cfg, logger.NewNoOp())
}

func fetchErr(t *testing.T, err error) *fetch.Error {
	t.Helper()
	require.Error(t, err)
	var fe *fetch.Error
	require.ErrorAs(t, err, &fe)
	return fe
}

func TestFetchSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	doc, err := newFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, doc.URL)
	assert.Contains(t, string(doc.Body), "ok")
	assert.Contains(t, doc.ContentType, "text/html")
	assert.Equal(t, "sitewatch-test/1.0", gotUA)
	assert.False(t, doc.FetchedAt.IsZero())
}

func TestFetchHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newFetcher(t, nil).Fetch(context.Background(), srv.URL)
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "HTTP status 404", fe.Reason())
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *config.FetcherConfig) {
		cfg.Timeout = 50 * time.Millisecond
	})

	_, err := f.Fetch(context.Background(), srv.URL)
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindTimeout, fe.Kind)
	assert.Equal(t, "Timeout", fe.Reason())
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *config.FetcherConfig) {
		cfg.MaxResponseSize = 10
	})

	_, err := f.Fetch(context.Background(), srv.URL)
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindTooLarge, fe.Kind)
}

func TestFetchBodyAtLimitSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 10)))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *config.FetcherConfig) {
		cfg.MaxResponseSize = 10
	})

	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, doc.Body, 10)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFetcher(t, nil).Fetch(ctx, srv.URL)
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindCancelled, fe.Kind)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	target := srv.URL
	srv.Close() // nothing listens here anymore

	_, err := newFetcher(t, nil).Fetch(context.Background(), target)
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindConnectionRefused, fe.Kind)
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := newFetcher(t, nil).Fetch(context.Background(), "not-a-url")
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindNetwork, fe.Kind)
}

func TestFetchRobotsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newFetcher(t, func(cfg *config.FetcherConfig) {
		cfg.RespectRobots = true
	})

	_, err := f.Fetch(context.Background(), srv.URL+"/private/page")
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindRobotsBlocked, fe.Kind)

	// Paths outside the disallow list still fetch.
	_, err = f.Fetch(context.Background(), srv.URL+"/public")
	assert.NoError(t, err)
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("ok"))
		case "/missing":
			http.NotFound(w, r)
		default:
			http.Redirect(w, r, "/ok", http.StatusFound)
		}
	}))
	defer srv.Close()

	f := newFetcher(t, nil)

	assert.NoError(t, f.TestConnection(context.Background(), srv.URL+"/ok"))
	assert.NoError(t, f.TestConnection(context.Background(), srv.URL+"/redirect"))

	err := f.TestConnection(context.Background(), srv.URL+"/missing")
	fe := fetchErr(t, err)
	assert.Equal(t, fetch.KindHTTPStatus, fe.Kind)
}
