package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Name != "browser" {
		t.Errorf("expected server name 'browser', got %q", cfg.Server.Name)
	}
	if !cfg.Browser.IsHeadless() {
		t.Error("expected headless by default")
	}
	if cfg.Browser.WindowWidth != 1280 || cfg.Browser.WindowHeight != 720 {
		t.Errorf("expected 1280x720, got %dx%d", cfg.Browser.WindowWidth, cfg.Browser.WindowHeight)
	}
	if got := cfg.Browser.NavigationTimeout(); got != 30*time.Second {
		t.Errorf("expected 30s navigation timeout, got %v", got)
	}
	if !cfg.Store.IsEncryptSecrets() {
		t.Error("expected secret encryption on by default")
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "browser" {
		t.Errorf("expected defaults, got server name %q", cfg.Server.Name)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  name: automation
  log_file: /tmp/automation.log
browser:
  headless: false
  window_width: 1920
  window_height: 1080
  profile: work
  default_navigation_timeout: 45s
mcp:
  sse_port: 8931
store:
  path: /tmp/agent.yaml
  encrypt_secrets: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "automation" {
		t.Errorf("expected name 'automation', got %q", cfg.Server.Name)
	}
	if cfg.Browser.IsHeadless() {
		t.Error("expected headless false")
	}
	if cfg.Browser.WindowWidth != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Browser.WindowWidth)
	}
	if cfg.Browser.Profile != "work" {
		t.Errorf("expected profile 'work', got %q", cfg.Browser.Profile)
	}
	if got := cfg.Browser.NavigationTimeout(); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
	if cfg.MCP.SSEPort != 8931 {
		t.Errorf("expected SSE port 8931, got %d", cfg.MCP.SSEPort)
	}
	if cfg.Store.IsEncryptSecrets() {
		t.Error("expected encryption disabled")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty server name")
	}

	cfg = DefaultConfig()
	cfg.MCP.SSEPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestNavigationTimeoutFallback(t *testing.T) {
	b := BrowserConfig{DefaultNavigationTimeout: "not-a-duration"}
	if got := b.NavigationTimeout(); got != 30*time.Second {
		t.Errorf("expected 30s fallback, got %v", got)
	}
}
