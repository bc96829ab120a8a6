package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":3002" || cfg.CORSOrigin != "*" || cfg.LeaderboardMax != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.GlobalReadTimeout != 10*time.Second || cfg.GlobalProbeTimeout != 5*time.Second {
		t.Fatalf("unexpected timeouts: %v / %v", cfg.GlobalReadTimeout, cfg.GlobalProbeTimeout)
	}
	if cfg.FrameInterval != 16*time.Millisecond {
		t.Fatalf("unexpected frame interval %v", cfg.FrameInterval)
	}
	if cfg.GlobalEnabled() || cfg.RedisEnabled() {
		t.Fatal("stores should be disabled by default")
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ENV", "staging")
	t.Setenv("HTTP_ADDR", ":9999")

	content := "# comment\nHTTP_ADDR=:1111\nCORS_ORIGIN=\"https://spacedog.example\"\nLEADERBOARD_SIZE=25\n"
	if err := os.WriteFile(filepath.Join(dir, ".env.staging"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("CORS_ORIGIN")
		os.Unsetenv("LEADERBOARD_SIZE")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("real env should win, got %q", cfg.HTTPAddr)
	}
	if cfg.CORSOrigin != "https://spacedog.example" {
		t.Fatalf("quoted value not unwrapped: %q", cfg.CORSOrigin)
	}
	if cfg.LeaderboardMax != 25 {
		t.Fatalf("LEADERBOARD_SIZE = %d", cfg.LeaderboardMax)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEADERBOARD_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("zero leaderboard size should fail")
	}

	t.Setenv("LEADERBOARD_SIZE", "10")
	t.Setenv("GLOBAL_READ_TIMEOUT_MS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("negative timeout should fail")
	}
}
