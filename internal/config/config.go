// Package config loads the engine's deployment-shaped configuration: log
// format, metrics namespace, runner supervision tunables, and exchange
// credential placeholders. Credential plumbing itself (vaults, secret
// managers) is out of scope; this package only shapes the struct that a
// real deployment would populate from its own secret store.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the engine process.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Observability ObservabilityConfig `yaml:"observability"`
	Runner        RunnerConfig        `yaml:"runner"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
}

// ServiceConfig names the process for logs and metrics.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// ObservabilityConfig controls logging and metrics ambient behavior.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`  // debug|info|warn|error
	LogFormat      string `yaml:"log_format"` // json|text
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPort    int    `yaml:"metrics_port"`
	MetricsNS      string `yaml:"metrics_namespace"`
}

// RunnerConfig holds defaults for runner supervision, separate from any
// single runner's strategy parameters.
type RunnerConfig struct {
	TickInterval         time.Duration `yaml:"tick_interval"`
	MaxHistory           int           `yaml:"max_history"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
	CheckpointQueueSize  int           `yaml:"checkpoint_queue_size"`
}

// ExchangeConfig is a placeholder shape for the single venue the engine
// talks to; actual credentials are injected by the deployment, never read
// from this file in plaintext.
type ExchangeConfig struct {
	Name            string        `yaml:"name"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	APISecretEnv    string        `yaml:"api_secret_env"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// Default returns a Config with sane defaults for local development.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{Name: "quantcore-engine"},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
			MetricsPort:    9090,
			MetricsNS:      "quantcore",
		},
		Runner: RunnerConfig{
			TickInterval:         time.Second,
			MaxHistory:           1000,
			HeartbeatInterval:    30 * time.Second,
			ReconnectBaseDelay:   time.Second,
			ReconnectMaxDelay:    time.Minute,
			ReconnectMaxAttempts: 10,
			CheckpointQueueSize:  10,
		},
		Exchange: ExchangeConfig{
			RateLimitPerSec: 10,
			RequestTimeout:  5 * time.Second,
		},
	}
}

// Load reads a YAML config file, applying it on top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the tunables the rest of the engine assumes are sane.
func (c *Config) Validate() error {
	if c.Runner.TickInterval <= 0 {
		return fmt.Errorf("config: runner.tick_interval must be positive")
	}
	if c.Runner.MaxHistory <= 0 {
		return fmt.Errorf("config: runner.max_history must be positive")
	}
	if c.Runner.CheckpointQueueSize <= 0 {
		return fmt.Errorf("config: runner.checkpoint_queue_size must be positive")
	}
	if c.Runner.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("config: runner.reconnect_max_attempts must be positive")
	}
	return nil
}
