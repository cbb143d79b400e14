// Package config loads the YAML configuration for the browser MCP server.
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	MCP     MCPConfig     `yaml:"mcp"`
	Store   StoreConfig   `yaml:"store"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Log destination for stdio mode (stderr corrupts the MCP stream).
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how the manager launches or attaches to Chrome.
type BrowserConfig struct {
	// Custom Chrome/Edge binary path (optional).
	BrowserPath string `yaml:"browser_path"`
	// Connect to an already-running browser via CDP URL instead of launching.
	CDPURL string `yaml:"cdp_url"`
	// Headless controls whether Chrome runs headless (default: true).
	Headless *bool `yaml:"headless"`
	// Browser window size (default: 1280x720).
	WindowWidth  int `yaml:"window_width"`
	WindowHeight int `yaml:"window_height"`
	// Named profile for session persistence (optional).
	Profile string `yaml:"profile"`
	// Default navigation timeout (e.g. "30s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// StoreConfig points at the agent configuration document managed by the
// config CRUD tools.
type StoreConfig struct {
	// Path to the agent config file. Empty disables the config tools.
	Path string `yaml:"path"`
	// EncryptSecrets controls at-rest encryption for set_secret
	// (default: true).
	EncryptSecrets *bool `yaml:"encrypt_secrets"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "browser",
			Version: "0.1.0",
			LogFile: "mcp-browser-server.log",
		},
		Browser: BrowserConfig{
			WindowWidth:              1280,
			WindowHeight:             720,
			DefaultNavigationTimeout: "30s",
		},
	}
}

// Load reads YAML config from disk over the defaults. A missing path keeps
// the defaults: the server is fully usable without a config file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so startup fails deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.MCP.SSEPort < 0 || c.MCP.SSEPort > 65535 {
		return errors.New("mcp.sse_port must be a valid port")
	}
	return nil
}

// IsHeadless returns whether Chrome should run headless (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.DefaultNavigationTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultNavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// IsEncryptSecrets returns whether secrets are encrypted at rest
// (default: true).
func (s StoreConfig) IsEncryptSecrets() bool {
	if s.EncryptSecrets == nil {
		return true
	}
	return *s.EncryptSecrets
}
