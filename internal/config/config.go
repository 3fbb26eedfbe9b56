// Package config holds the Glyde controller configuration: browser launch
// settings, the injection manifest location, chat policy, and logging. The
// file lives at ~/.glyde/config.yaml by default; a missing file yields
// defaults, environment variables override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full controller configuration.
type Config struct {
	// Session is the default session name when --session is not given.
	Session string `yaml:"session"`

	Browser BrowserConfig `yaml:"browser"`
	Inject  InjectConfig  `yaml:"inject"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the browser driver.
type BrowserConfig struct {
	Bin                 string `yaml:"bin"`
	DebuggerURL         string `yaml:"debugger_url"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

// InjectConfig configures the script-injection engine.
type InjectConfig struct {
	// Manifest is the injection manifest path. Empty disables injection.
	Manifest string `yaml:"manifest"`
	// Watch enables manifest/script file watching with reload-on-change.
	Watch bool `yaml:"watch"`
}

// ChatConfig configures the chat command.
type ChatConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig configures controller-side file logging.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Session: "default",
		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
		},
		Chat:    ChatConfig{TimeoutSeconds: 30},
		Logging: LoggingConfig{Debug: false, Level: "info"},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if env := os.Getenv("GLYDE_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".glyde", "config.yaml")
}

// Load reads the config at path, falling back to defaults when the file is
// absent. Environment overrides are applied either way.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GLYDE_SESSION"); v != "" {
		c.Session = v
	}
	if v := os.Getenv("GLYDE_MANIFEST"); v != "" {
		c.Inject.Manifest = v
	}
	if v := os.Getenv("GLYDE_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("GLYDE_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("GLYDE_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("GLYDE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
}

// Validate checks values that would otherwise fail deep inside the stack.
func (c Config) Validate() error {
	if c.Session == "" {
		return fmt.Errorf("session name must not be empty")
	}
	if c.Chat.TimeoutSeconds < 0 {
		return fmt.Errorf("chat timeout_seconds must not be negative")
	}
	if c.Browser.NavigationTimeoutMs < 0 {
		return fmt.Errorf("browser navigation_timeout_ms must not be negative")
	}
	if c.Inject.Watch && c.Inject.Manifest == "" {
		return fmt.Errorf("inject.watch requires inject.manifest")
	}
	return nil
}

// ChatTimeout returns the chat reply wait as a duration.
func (c Config) ChatTimeout() time.Duration {
	if c.Chat.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Chat.TimeoutSeconds) * time.Second
}
