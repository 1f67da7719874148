package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CAMPUS_API_URL", "CAMPUS_AUTH_SCHEME", "CAMPUS_REQUEST_TIMEOUT", "CAMPUS_PENDING_MESSAGES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.AuthScheme != models.AuthBearer {
		t.Errorf("expected bearer scheme, got %q", cfg.AuthScheme)
	}
	if cfg.RequestTimeout != 0 {
		t.Errorf("expected no request timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.PendingMessages {
		t.Error("expected pending messages to be off by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CAMPUS_API_URL", "https://social.example.edu/api")
	t.Setenv("CAMPUS_AUTH_SCHEME", "BARE")
	t.Setenv("CAMPUS_REQUEST_TIMEOUT", "15")
	t.Setenv("CAMPUS_RECONNECT_MAX", "2m")
	t.Setenv("CAMPUS_PENDING_MESSAGES", "true")

	cfg := Load()
	if cfg.APIBaseURL != "https://social.example.edu/api" {
		t.Errorf("expected api url from env, got %q", cfg.APIBaseURL)
	}
	if cfg.AuthScheme != models.AuthBare {
		t.Errorf("expected bare scheme, got %q", cfg.AuthScheme)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("expected 15s timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.ReconnectMax != 2*time.Minute {
		t.Errorf("expected 2m reconnect cap, got %v", cfg.ReconnectMax)
	}
	if !cfg.PendingMessages {
		t.Error("expected pending messages enabled")
	}
}

func TestDatabasePaths(t *testing.T) {
	cfg := &Config{DevDatabaseURL: "sqlite://data/dev.db", SessionPath: "/var/lib/campus/session.db"}

	if got := cfg.CleanSessionPath(); got != "/var/lib/campus/session.db" {
		t.Errorf("expected absolute path untouched, got %q", got)
	}
	if got := cfg.CleanDevDatabasePath(); !filepath.IsAbs(got) || filepath.Base(got) != "dev.db" {
		t.Errorf("expected absolute dev.db path, got %q", got)
	}

	cfg.UpdateDevDatabasePath("/tmp/loadtest.db")
	if cfg.DevDatabaseURL != "sqlite:///tmp/loadtest.db" {
		t.Errorf("expected prefix kept, got %q", cfg.DevDatabaseURL)
	}
}
