package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBaseURL, EnvAgentBaseURL, EnvToken, EnvBridgeURL, EnvTimeout, EnvReviewTime} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Settings != Defaults() {
		t.Errorf("Settings = %+v, want defaults %+v", cfg.Settings, Defaults())
	}
	if got := filepath.Base(cfg.StatePath()); got != StateFile {
		t.Errorf("StatePath() base = %q, want %q", got, StateFile)
	}
}

func TestDefaultConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got, want := DefaultConfigDir(), filepath.Join("/tmp/xdg", AppName); got != want {
		t.Errorf("DefaultConfigDir() = %q, want %q", got, want)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := "base_url: http://svc/api/\nagent_base_url: http://agent/agent/\ntimeout: 3s\nreview_time: \"20:30\"\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Settings.BaseURL != "http://svc/api" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.Settings.BaseURL)
	}
	if cfg.Settings.AgentBaseURL != "http://agent/agent" {
		t.Errorf("AgentBaseURL = %q", cfg.Settings.AgentBaseURL)
	}
	if cfg.Settings.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Settings.Timeout)
	}
	if cfg.Settings.ReviewTime != "20:30" {
		t.Errorf("ReviewTime = %q", cfg.Settings.ReviewTime)
	}
	if cfg.Settings.Token != DefaultToken {
		t.Errorf("Token = %q, want default", cfg.Settings.Token)
	}

	t.Setenv(EnvBaseURL, "http://override/api")
	t.Setenv(EnvTimeout, "250ms")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Settings.BaseURL != "http://override/api" {
		t.Errorf("BaseURL = %q, want env override", cfg.Settings.BaseURL)
	}
	if cfg.Settings.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", cfg.Settings.Timeout)
	}
	if cfg.Stored().BaseURL != "http://svc/api" {
		t.Errorf("Stored().BaseURL = %q, env must not leak into stored settings", cfg.Stored().BaseURL)
	}
}

func TestLoad_DotEnvInConfigDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, EnvFile), []byte(EnvToken+"=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvToken) })

	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Settings.Token != "from-dotenv" {
		t.Errorf("Token = %q, want value from .env", cfg.Settings.Token)
	}
}

func TestLoad_InvalidTimeoutEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTimeout, "soon")
	if _, err := New(t.TempDir()); err == nil {
		t.Error("New() expected error for invalid timeout")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte("base_url: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Error("New() expected error for invalid yaml")
	}
}

func TestUpdate_WritesAndReloads(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "nested")
	cfg, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.Update(func(s *Settings) {
		s.BaseURL = "http://new/api/"
		s.AgentBaseURL = "http://agent/agent"
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cfg.Settings.BaseURL != "http://new/api" {
		t.Errorf("BaseURL = %q", cfg.Settings.BaseURL)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("config dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("config dir mode = %o, want 0700", perm)
	}

	again, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.Settings.AgentBaseURL != "http://agent/agent" {
		t.Errorf("reloaded AgentBaseURL = %q", again.Settings.AgentBaseURL)
	}

	if err := again.Update(func(s *Settings) { s.AgentBaseURL = "" }); err != nil {
		t.Fatal(err)
	}
	if again.Settings.AgentBaseURL != "" {
		t.Errorf("AgentBaseURL = %q, want cleared", again.Settings.AgentBaseURL)
	}
}
