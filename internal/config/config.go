package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tagging backends.
const (
	BackendHTTP   = "http"
	BackendEC2    = "ec2"
	BackendDryRun = "dry-run"
)

// Config models tagflow.yml.
type Config struct {
	API struct {
		// BaseURL of the record API. Empty means the workspace database is used directly.
		BaseURL        string `yaml:"base_url"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Tagging struct {
		Backend             string `yaml:"backend"`
		Endpoint            string `yaml:"endpoint"`
		DefaultRegion       string `yaml:"default_region"`
		DefaultResourceType string `yaml:"default_resource_type"`
	} `yaml:"tagging"`
	Engine struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"engine"`
	Notifications struct {
		Enabled bool `yaml:"enabled"`
		// CallTimeoutSeconds bounds each notification or email call.
		CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	} `yaml:"notifications"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Load reads and validates config from workspace, falling back to defaults when absent.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Tagging.Backend {
	case BackendHTTP:
		if strings.TrimSpace(c.Tagging.Endpoint) == "" {
			return fmt.Errorf("config.tagging.endpoint is required for backend %s", BackendHTTP)
		}
	case BackendEC2, BackendDryRun:
	default:
		return fmt.Errorf("config.tagging.backend must be one of %s, %s, %s", BackendHTTP, BackendEC2, BackendDryRun)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("config.engine.concurrency must be positive")
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("config.api.timeout_seconds must not be negative")
	}
	if c.Notifications.CallTimeoutSeconds < 0 {
		return fmt.Errorf("config.notifications.call_timeout_seconds must not be negative")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Timeout returns the record API timeout.
func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutSeconds == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tagflow.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `api:
  base_url: ""
  timeout_seconds: 10

tagging:
  backend: dry-run
  default_region: us-east-2
  default_resource_type: EC2

engine:
  concurrency: 8

notifications:
  enabled: true
  call_timeout_seconds: 10

log:
  level: info
  format: console

server:
  addr: 127.0.0.1:8080
  base_path: /api
`
