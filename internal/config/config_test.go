package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	if !errors.Is(err, ErrMissingDatabaseURL) {
		t.Fatalf("Load() error = %v, want ErrMissingDatabaseURL", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pageforge")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ACCESS_TTL_SECONDS", "")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("TRUST_PROXY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("AccessTTL = %v, want 30m", cfg.AccessTTL)
	}
	if cfg.OpenAIKey != "" {
		t.Fatalf("expected AI to stay unconfigured")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %#v", cfg.CORSOrigins)
	}
	if cfg.TrustProxy {
		t.Fatal("TrustProxy should default to false")
	}
}

func TestGetenvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("PF_TEST_INT", "abc")
	if got := getenvInt("PF_TEST_INT", 7); got != 7 {
		t.Fatalf("getenvInt() = %d, want 7", got)
	}
	t.Setenv("PF_TEST_BOOL", "true")
	if !getenvBool("PF_TEST_BOOL", false) {
		t.Fatal("getenvBool() = false, want true")
	}
}
