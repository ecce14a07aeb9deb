package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "payment-gateway" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.ProviderTimeout != 10*time.Second {
		t.Fatalf("expected 10s provider timeout, got %s", cfg.ProviderTimeout)
	}
	if cfg.RateLimit.Requests != 100 || cfg.RateLimit.Window != 15*time.Minute {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.CallbackURL() != "http://localhost:3000/payment/callback" {
		t.Fatalf("unexpected callback url %q", cfg.CallbackURL())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FRONTEND_URL", "https://shop.example.com/")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %q", cfg.Port)
	}
	if cfg.FrontendURL != "https://shop.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.FrontendURL)
	}
	if cfg.ProviderTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.ProviderTimeout)
	}
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("expected lower-cased driver, got %q", cfg.Store.Driver)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadCORSOriginsIncludeFrontend(t *testing.T) {
	t.Setenv("FRONTEND_URL", "https://pay.example.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	t.Setenv("CORS_ORIGIN_SUFFIXES", ".vercel.app, .example.dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"http://localhost:3000", "https://pay.example.com"}
	if len(cfg.CORS.AllowedOrigins) != len(want) {
		t.Fatalf("origins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.CORS.AllowedOrigins[i] != want[i] {
			t.Fatalf("origins = %v, want %v", cfg.CORS.AllowedOrigins, want)
		}
	}
	if len(cfg.CORS.AllowedSuffixes) != 2 || cfg.CORS.AllowedSuffixes[1] != ".example.dev" {
		t.Fatalf("suffixes = %v", cfg.CORS.AllowedSuffixes)
	}
}
