package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("unexpected base path: %q", cfg.APIBasePath)
	}
	if cfg.DBPath != "app.db" || cfg.RedisAddr != "" || cfg.CacheCapacity != 200 {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.DefaultPageSize != 20 || cfg.MaxPageSize != 100 {
		t.Fatalf("unexpected pagination defaults: %+v", cfg)
	}
	if cfg.ProcessingTTL != time.Hour || cfg.CompletedTTL != time.Hour ||
		cfg.FailedTTL != 5*time.Minute || cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("unexpected retention defaults: %+v", cfg)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("unexpected rate defaults: %+v", cfg)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("unexpected otel defaults: %+v", cfg.OTEL)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "WARNING") // normalized to warn
	t.Setenv("GIN_MODE", "bogus")    // falls back to release
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("IDEMPOTENCY_FAILED_TTL", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.LogLevel != "warn" || cfg.GinMode != "release" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path not normalized: %q", cfg.APIBasePath)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr not read: %q", cfg.RedisAddr)
	}
	if cfg.FailedTTL != 90*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.FailedTTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CSV not parsed: %+v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"LOG_LEVEL":                  "verbose",
		"READ_TIMEOUT":               "-1s",
		"MAX_HEADER_BYTES":           "0",
		"CACHE_CAPACITY":             "-1",
		"DEFAULT_PAGE_SIZE":          "0",
		"MAX_PAGE_SIZE":              "5", // below the default page size
		"IDEMPOTENCY_PROCESSING_TTL": "-1m",
		"IDEMPOTENCY_SWEEP_INTERVAL": "-1m",
		"RATE_BURST":                 "0",
		"OTEL_TRACES_SAMPLER_ARG":    "1.5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, val)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustLoad()
}
