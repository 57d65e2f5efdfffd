package config

import (
	"fmt"

	"github.com/jcode-dev/jcoded/pkg/background"
)

// ExternalServerConfig is one entry in the ExternalPool's server list
// (spec §4.9, §6 "ExternalPool (MCP) config").
type ExternalServerConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// ObservabilityConfig toggles the daemon's tracing/metrics surface.
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled,omitempty"`
	MetricsEnabled bool   `yaml:"metrics_enabled,omitempty"`
	MetricsAddr    string `yaml:"metrics_addr,omitempty"`
}

// Config is the daemon's full configuration surface (SPEC_FULL.md
// "Configuration"): IPC socket path, background-task directory,
// external-pool server definitions, default provider/model,
// observability toggles, and logger settings.
type Config struct {
	SocketPath       string                          `yaml:"socket_path,omitempty"`
	BackgroundTaskDir string                         `yaml:"background_task_dir,omitempty"`
	DefaultProvider  string                          `yaml:"default_provider,omitempty"`
	DefaultModel     string                          `yaml:"default_model,omitempty"`
	ExternalServers  map[string]ExternalServerConfig `yaml:"external_servers,omitempty"`
	Observability    ObservabilityConfig             `yaml:"observability,omitempty"`
	Logger           LoggerConfig                    `yaml:"logger,omitempty"`
}

// SetDefaults fills in zero-valued fields with the daemon's defaults.
func (c *Config) SetDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath()
	}
	if c.BackgroundTaskDir == "" {
		c.BackgroundTaskDir = background.DefaultDir()
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = "anthropic"
	}
	c.Logger.SetDefaults()
}

// Validate checks the config for structural errors beyond what
// unmarshalling alone catches.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("config: logger: %w", err)
	}
	for name, srv := range c.ExternalServers {
		if srv.Command == "" {
			return fmt.Errorf("config: external_servers.%s: command is required", name)
		}
	}
	return nil
}
