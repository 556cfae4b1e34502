package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CANVAS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"CANVAS_PORT", "CANVAS_API_KEY", "CANVAS_STORE", "CANVAS_PUBLIC_URL", "CANVAS_CDN_VERSIONS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.StoreDriver != "memory" {
		t.Errorf("expected memory store, got %s", cfg.StoreDriver)
	}
	if cfg.PublicURL != "http://localhost:8080" {
		t.Errorf("expected derived public URL, got %s", cfg.PublicURL)
	}
	if cfg.CDNVersions["react"] != "19" || cfg.CDNVersions["react-dom"] != "19" {
		t.Errorf("expected react pinned to 19, got %v", cfg.CDNVersions)
	}
	if cfg.IdleTimeout != 15*time.Minute {
		t.Errorf("expected 15m idle timeout, got %s", cfg.IdleTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CANVAS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CANVAS_PORT", "9999")
	t.Setenv("CANVAS_API_KEY", "test-key")
	t.Setenv("CANVAS_PUBLIC_URL", "https://canvas.example.com/")
	t.Setenv("CANVAS_CDN_VERSIONS", "react=18.3.1, framer-motion=11 ,bad")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
	if cfg.PublicURL != "https://canvas.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.PublicURL)
	}
	if len(cfg.CDNVersions) != 2 || cfg.CDNVersions["framer-motion"] != "11" {
		t.Errorf("unexpected versions: %v", cfg.CDNVersions)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("CANVAS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	t.Setenv("CANVAS_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid port")
	}

	t.Setenv("CANVAS_PORT", "")
	t.Setenv("CANVAS_STORE", "postgres")
	t.Setenv("CANVAS_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for postgres without a database URL")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CANVAS_JWT_SECRET=from-file\nCANVAS_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CANVAS_ENV_FILE", path)
	t.Setenv("CANVAS_LOG_LEVEL", "warn")
	t.Setenv("CANVAS_JWT_SECRET", "")
	os.Unsetenv("CANVAS_JWT_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Errorf("expected secret from .env, got %q", cfg.JWTSecret)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected env to win over .env, got %q", cfg.LogLevel)
	}
}

func TestEnvName(t *testing.T) {
	if got := envName("canvas-jwt-secret"); got != "CANVAS_JWT_SECRET" {
		t.Errorf("envName = %q", got)
	}
}
