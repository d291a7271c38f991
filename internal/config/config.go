// ABOUTME: Configuration loading and parsing for compact-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWSPath is where subscribers upgrade when ws_path is not set.
	DefaultWSPath = "/ws"
	// DefaultDispatchTimeout bounds each individual delivery attempt.
	DefaultDispatchTimeout = 10 * time.Second
)

// Config represents the complete compact-relay configuration
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Endpoints []string       `yaml:"endpoints"`
	Dispatch  DispatchConfig `yaml:"dispatch"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener configuration. The websocket subscription
// endpoint shares the HTTP listener via upgrade at WSPath.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	WSPath   string `yaml:"ws_path"`
}

// DispatchConfig holds fan-out timing configuration
type DispatchConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Any load or validation failure is fatal to startup: the relay must not
// begin serving with malformed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = DefaultDispatchTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.WSPath == "" || c.Server.WSPath[0] != '/' {
		return fmt.Errorf("server.ws_path must start with /")
	}
	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("dispatch.timeout must not be negative")
	}

	// An empty endpoint list is valid (subscriber-only deployments), but
	// every listed endpoint must be an absolute http(s) URL.
	for i, endpoint := range c.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("endpoints[%d] %q: %w", i, endpoint, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoints[%d] %q: must be an absolute http(s) URL", i, endpoint)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dispatch.TimeoutRaw != "" {
		cfg.Dispatch.Timeout, err = time.ParseDuration(cfg.Dispatch.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch.timeout %q: %w", cfg.Dispatch.TimeoutRaw, err)
		}
	}

	return nil
}
