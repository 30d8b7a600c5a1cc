// Package config handles configuration loading from YAML, CLI flags, and environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Proxy     ProxyConfig     `yaml:"proxy"`
	Journal   JournalConfig   `yaml:"journal"`
	Store     StoreConfig     `yaml:"store"`
	Dump      DumpConfig      `yaml:"dump"`
	Retention RetentionConfig `yaml:"retention"`
	API       APIConfig       `yaml:"api"`
}

// ProxyConfig configures the capture proxy.
type ProxyConfig struct {
	Listen           string `yaml:"listen"`             // e.g., "localhost:9090"
	UpstreamURL      string `yaml:"upstream_url"`       // e.g., "https://api.anthropic.com"
	UpstreamTimeoutS int    `yaml:"upstream_timeout_s"` // Upper bound on a single upstream call
	SessionHeader    string `yaml:"session_header"`     // Inbound header carrying the session id
}

// JournalConfig configures the append-only spindle log.
type JournalConfig struct {
	Path         string `yaml:"path"`           // JSONL file path
	QueueMaxSize int    `yaml:"queue_max_size"` // Bounded write queue
	Preview      bool   `yaml:"preview"`        // Echo truncated previews to stderr
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// DumpConfig configures raw per-request byte dumps.
type DumpConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// RetentionConfig configures data retention TTLs.
type RetentionConfig struct {
	SpindlesTTLDays int `yaml:"spindles_ttl_days"`
}

// APIConfig configures the query API server.
type APIConfig struct {
	Listen string `yaml:"listen"`
	Token  string `yaml:"token"` // Bearer token for API access
}

// DefaultConfig returns a Config with working defaults.
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Listen:           "localhost:9090",
			UpstreamURL:      "https://api.anthropic.com",
			UpstreamTimeoutS: 1800, // Streaming responses can run for a long time
			SessionHeader:    "X-Spindle-Session",
		},
		Journal: JournalConfig{
			Path:         "", // Set in Load based on platform
			QueueMaxSize: 4096,
			Preview:      true,
		},
		Store: StoreConfig{
			DBPath: "", // Set in Load based on platform
		},
		Dump: DumpConfig{
			Enabled: false,
			Dir:     "", // Set in Load based on platform
		},
		Retention: RetentionConfig{
			SpindlesTTLDays: 30,
		},
		API: APIConfig{
			Listen: "localhost:9091",
			Token:  "", // Generated on first run if empty
		},
	}
}

// ConfigDir returns the platform-specific config directory.
func ConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "spindle"), nil
	default: // linux, darwin, etc.
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, ".config", "spindle"), nil
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file, with environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting config directory: %w", err)
	}
	cfg.Journal.Path = filepath.Join(dir, "spindles.jsonl")
	cfg.Store.DBPath = filepath.Join(dir, "spindle.db")
	cfg.Dump.Dir = filepath.Join(dir, "dumps")

	if path == "" {
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("getting default config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults and generate token
			cfg.applyEnvOverrides()
			if cfg.API.Token == "" {
				cfg.API.Token, err = generateToken()
				if err != nil {
					return nil, fmt.Errorf("generating auth token: %w", err)
				}
				if err := cfg.Save(path); err != nil {
					return nil, fmt.Errorf("saving config: %w", err)
				}
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.API.Token == "" {
		cfg.API.Token, err = generateToken()
		if err != nil {
			return nil, fmt.Errorf("generating auth token: %w", err)
		}
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("saving config: %w", err)
		}
	}

	return cfg, nil
}

// Save writes the config to the specified path with secure permissions.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Owner read/write only - the file holds the API token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SPINDLE_LISTEN"); v != "" {
		c.Proxy.Listen = v
	}
	if v := os.Getenv("SPINDLE_UPSTREAM_URL"); v != "" {
		c.Proxy.UpstreamURL = v
	}
	if v := os.Getenv("SPINDLE_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("SPINDLE_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("SPINDLE_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("SPINDLE_DUMP_DIR"); v != "" {
		c.Dump.Enabled = true
		c.Dump.Dir = v
	}
}

// generateToken generates a cryptographically random auth token.
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "spindle_" + hex.EncodeToString(bytes), nil
}

// UpstreamTimeout returns the upstream call timeout as a duration.
func (c *ProxyConfig) UpstreamTimeout() time.Duration {
	if c.UpstreamTimeoutS <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.UpstreamTimeoutS) * time.Second
}
