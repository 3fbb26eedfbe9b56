package config

import (
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GLYDE_SESSION", "GLYDE_MANIFEST", "GLYDE_DEBUGGER_URL", "GLYDE_CHROME_BIN", "GLYDE_HEADLESS", "GLYDE_DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Session != "default" {
		t.Errorf("expected Session=default, got %s", cfg.Session)
	}
	if cfg.Browser.ViewportWidth != 1920 {
		t.Errorf("expected ViewportWidth=1920, got %d", cfg.Browser.ViewportWidth)
	}
	if cfg.Chat.TimeoutSeconds != 30 {
		t.Errorf("expected chat timeout 30s, got %d", cfg.Chat.TimeoutSeconds)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Session = "demo"
	cfg.Browser.Headless = true
	cfg.Inject.Manifest = "/etc/glyde/manifest.yaml"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Session != "demo" {
		t.Errorf("expected Session=demo, got %s", loaded.Session)
	}
	if !loaded.Browser.Headless {
		t.Error("expected headless preserved")
	}
	if loaded.Inject.Manifest != "/etc/glyde/manifest.yaml" {
		t.Errorf("expected manifest preserved, got %s", loaded.Inject.Manifest)
	}
}

func TestConfig_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should succeed, got %v", err)
	}
	if cfg.Session != "default" {
		t.Errorf("expected defaults, got session %s", cfg.Session)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GLYDE_SESSION", "env-session")
	t.Setenv("GLYDE_HEADLESS", "true")
	t.Setenv("GLYDE_MANIFEST", "/tmp/m.yaml")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Session != "env-session" {
		t.Errorf("expected env session override, got %s", cfg.Session)
	}
	if !cfg.Browser.Headless {
		t.Error("expected env headless override")
	}
	if cfg.Inject.Manifest != "/tmp/m.yaml" {
		t.Errorf("expected env manifest override, got %s", cfg.Inject.Manifest)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}

	cfg.Session = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty session")
	}

	cfg = DefaultConfig()
	cfg.Inject.Watch = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for watch without manifest")
	}
}

func TestConfig_ChatTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChatTimeout() != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.ChatTimeout())
	}
	cfg.Chat.TimeoutSeconds = 5
	if cfg.ChatTimeout() != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.ChatTimeout())
	}
}
