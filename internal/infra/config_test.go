package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("QUEUE_BACKEND", "")
	t.Setenv("RENDER_WORKERS", "")
	t.Setenv("DOWNLOAD_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8000" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.QueueBackend != QueueBackendMemory {
		t.Fatalf("QueueBackend = %q, want memory", cfg.QueueBackend)
	}
	if cfg.RenderWorkers != 2 {
		t.Fatalf("RenderWorkers = %d, want 2", cfg.RenderWorkers)
	}
	if cfg.DownloadTimeout != 30*time.Second {
		t.Fatalf("DownloadTimeout = %s, want 30s", cfg.DownloadTimeout)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigSessionSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("APP_ENV", "production")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when SESSION_SECRET is missing in production")
	}

	t.Setenv("APP_ENV", "development")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SessionSecret == "" {
		t.Fatal("development should fall back to a default session secret")
	}
}

func TestLoadConfigRejectsUnknownQueueBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("QUEUE_BACKEND", "kafka")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported queue backend")
	}
}

func TestLoadConfigAllowedOrigins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %#v, want %#v", cfg.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.AllowedOrigins[i] != want[i] {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], want[i])
		}
	}
}
