package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optin/internal/platform/config"
	"optin/internal/platform/metrics"
	"optin/internal/storage"
	"optin/internal/storage/cookie"
	"optin/internal/storage/memory"
	"optin/internal/visitor"
	"optin/pkg/testutil"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

func testConfig() config.Server {
	return config.Server{
		Storage:   config.StorageMemory,
		Visitor:   config.VisitorConfig{SigningKey: "test-key", TTL: 24 * time.Hour},
		RateLimit: config.RateLimitConfig{PerSecond: 100, Burst: 100},
	}
}

func newTestServer(t *testing.T, cfg config.Server, backend *storageBackend) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router, err := newRouter(cfg, log, metrics.New(prometheus.NewRegistry()), backend)
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestFirstVisitRejectThenReturn(t *testing.T) {
	srv := newTestServer(t, testConfig(), &storageBackend{
		factory: storage.BackendFactory{Backend: memory.New()},
		close:   func() error { return nil },
	})
	client := srv.Client()

	get := func(t *testing.T, cookies []*http.Cookie) (*http.Response, string) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
		req.Header.Set("User-Agent", browserUA)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, string(body)
	}

	var cookies []*http.Cookie
	testutil.NewScenario(t).Given("a first visit", func(t *testing.T) {
		resp, body := get(t, nil)
		assert.Contains(t, body, `data-view="choice"`)
		cookies = resp.Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, visitor.CookieName, cookies[0].Name)
	}).When("the visitor rejects all", func(t *testing.T) {
		require.NotEmpty(t, cookies)
		form := url.Values{"view": {"choice"}}
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/consent/reject-all", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		req.Header.Set("User-Agent", browserUA)
		req.AddCookie(cookies[0])
		post, err := client.Do(req)
		require.NoError(t, err)
		post.Body.Close()
		assert.Equal(t, http.StatusOK, post.StatusCode)
		assert.Equal(t, "hidden", post.Header.Get("X-Consent-View"))
	}).Then("the next page load shows no banner", func(t *testing.T) {
		_, body := get(t, cookies)
		assert.Contains(t, body, `data-view="hidden"`)
		assert.NotContains(t, body, "/consent/accept-all")
	})
}

func TestCookieModeNeedsNoVisitorID(t *testing.T) {
	cfg := testConfig()
	cfg.Storage = config.StorageCookie
	srv := newTestServer(t, cfg, &storageBackend{close: func() error { return nil }, factory: cookieFactoryForTest()})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	req.Header.Set("User-Agent", browserUA)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		assert.NotEqual(t, visitor.CookieName, c.Name)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, testConfig(), &storageBackend{
		factory: storage.BackendFactory{Backend: memory.New()},
		close:   func() error { return nil },
	})
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func cookieFactoryForTest() storage.Factory {
	return cookie.Factory{}
}

func TestActionRoutesIgnoreSpoofedForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 1, MaxClients: 100}
	srv := newTestServer(t, cfg, &storageBackend{
		factory: storage.BackendFactory{Backend: memory.New()},
		close:   func() error { return nil },
	})

	post := func(forwardedFor string) int {
		form := url.Values{"view": {"choice"}}
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/consent/customize", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		req.Header.Set("User-Agent", browserUA)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.3"))
}
