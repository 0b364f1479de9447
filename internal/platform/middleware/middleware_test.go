package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optin/pkg/requestcontext"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})

	t.Run("propagated when supplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "req-123", seen)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestClientMetadata(t *testing.T) {
	resolver, err := NewClientIP([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var ip, ua string
	h := ClientMetadata(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "Mozilla/5.0", ua)
}

func TestClientIP(t *testing.T) {
	resolver, err := NewClientIP([]string{"10.0.0.0/8", " 192.0.2.10 ", "::1"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "untrusted peer ignores forwarded-for", header: map[string]string{"X-Forwarded-For": "198.51.100.9"}, remote: "203.0.113.7:5555", want: "203.0.113.7"},
		{name: "untrusted peer ignores real-ip", header: map[string]string{"X-Real-IP": "198.51.100.9"}, remote: "203.0.113.7:5555", want: "203.0.113.7"},
		{name: "trusted peer first untrusted hop from the right", header: map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.9, 10.1.1.1"}, remote: "10.0.0.1:80", want: "198.51.100.9"},
		{name: "trusted peer all hops trusted", header: map[string]string{"X-Forwarded-For": "10.9.9.9, 10.1.1.1"}, remote: "192.0.2.10:80", want: "10.9.9.9"},
		{name: "trusted peer garbage hop", header: map[string]string{"X-Forwarded-For": "not-an-ip"}, remote: "10.0.0.1:80", want: "10.0.0.1"},
		{name: "trusted peer real-ip", header: map[string]string{"X-Real-IP": " 198.51.100.1 "}, remote: "10.0.0.1:1", want: "198.51.100.1"},
		{name: "trusted ipv6 peer", header: map[string]string{"X-Forwarded-For": "2001:db8::1"}, remote: "[::1]:4567", want: "2001:db8::1"},
		{name: "ipv4 remote", remote: "192.0.2.1:4567", want: "192.0.2.1"},
		{name: "ipv6 remote", remote: "[2001:db8::2]:4567", want: "2001:db8::2"},
		{name: "nothing", remote: "", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, resolver.FromRequest(req))
		})
	}
}

func TestNewClientIPRejectsBadEntries(t *testing.T) {
	_, err := NewClientIP([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewClientIP([]string{"proxy.internal"})
	assert.Error(t, err)

	resolver, err := NewClientIP(nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	assert.Equal(t, "203.0.113.7", resolver.FromRequest(req))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2, discard)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"), "refilled")

	now = now.Add(time.Hour)
	l.Allow("c")
	l.mu.Lock()
	_, kept := l.visitors["a"]
	l.mu.Unlock()
	assert.False(t, kept, "idle buckets are swept")
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(0.001, 1, discard)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/consent/accept-all", nil)
		req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "192.0.2.9", "ua"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiterIgnoresRotatingForwardedFor(t *testing.T) {
	resolver, err := NewClientIP(nil)
	require.NoError(t, err)
	l := NewRateLimiter(1, 1, discard)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	h := ClientMetadata(resolver)(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	allowed := 0
	for i := 0; i < 1000; i++ {
		req := httptest.NewRequest(http.MethodPost, "/consent/accept-all", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.%d.%d", i/256, i%256))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusNoContent {
			allowed++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}

	assert.Equal(t, 1, allowed)
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.visitors, 1)
}

func TestRateLimiterCapsClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 5, discard, WithMaxClients(2))
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.False(t, l.Allow("c"), "table full")
	assert.True(t, l.Allow("a"), "known clients keep their bucket")

	now = now.Add(11 * time.Minute)
	assert.True(t, l.Allow("c"), "idle buckets make room")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.visitors, 1)
}
