package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("VISITOR_SIGNING_KEY", "test-signing-key")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, 10000, cfg.RateLimit.MaxClients)
	assert.Empty(t, cfg.RateLimit.TrustedProxies)
	assert.True(t, cfg.UsesVisitorID())
}

func TestFromEnvRequiresSigningKeyForServerStorage(t *testing.T) {
	t.Setenv("VISITOR_SIGNING_KEY", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VISITOR_SIGNING_KEY")

	t.Setenv("OPTIN_STORAGE", "cookie")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.Visitor.SigningKey)
}

func TestFromEnvTrustedProxies(t *testing.T) {
	t.Setenv("VISITOR_SIGNING_KEY", "test-signing-key")
	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.RateLimit.TrustedProxies)

	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "10.0.0.0/8,lb.internal")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_TRUSTED_PROXIES")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("OPTIN_ADDR", ":9999")
	t.Setenv("OPTIN_STORAGE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_ENTRY_TTL", "720h")
	t.Setenv("VISITOR_SIGNING_KEY", "test-signing-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, 720*time.Hour, cfg.Redis.EntryTTL)
}

func TestValidate(t *testing.T) {
	base := Server{
		Storage:   StorageMemory,
		Visitor:   VisitorConfig{SigningKey: "k"},
		RateLimit: RateLimitConfig{PerSecond: 1, Burst: 1, MaxClients: 10},
	}

	tests := []struct {
		name    string
		mutate  func(*Server)
		wantErr string
	}{
		{name: "memory", mutate: func(*Server) {}},
		{name: "redis without url", mutate: func(s *Server) { s.Storage = StorageRedis }, wantErr: "REDIS_URL"},
		{name: "postgres without url", mutate: func(s *Server) { s.Storage = StoragePostgres }, wantErr: "DATABASE_URL"},
		{name: "unknown backend", mutate: func(s *Server) { s.Storage = "etcd" }, wantErr: "unknown OPTIN_STORAGE"},
		{name: "cookie needs no signing key", mutate: func(s *Server) {
			s.Storage = StorageCookie
			s.Visitor.SigningKey = ""
		}},
		{name: "server side needs signing key", mutate: func(s *Server) { s.Visitor.SigningKey = "" }, wantErr: "VISITOR_SIGNING_KEY"},
		{name: "zero burst", mutate: func(s *Server) { s.RateLimit.Burst = 0 }, wantErr: "rate limit"},
		{name: "zero max clients", mutate: func(s *Server) { s.RateLimit.MaxClients = 0 }, wantErr: "rate limit"},
		{name: "trusted proxies", mutate: func(s *Server) { s.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "::1"} }},
		{name: "bad trusted proxy", mutate: func(s *Server) { s.RateLimit.TrustedProxies = []string{"10.0.0.0/40"} }, wantErr: "RATE_LIMIT_TRUSTED_PROXIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
