// Package config loads the dcclink configuration: port layout, command
// timeout, and the supported host applications per tool.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dcclink/dcc"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "dcclink.yaml"

// Config holds the runtime configuration.
type Config struct {
	// BasePort is the port the per-app offsets are applied to.
	BasePort int `yaml:"base_port,omitempty"`

	// TimeoutSeconds bounds one command round trip on the client.
	TimeoutSeconds int `yaml:"timeout,omitempty"`

	// SupportedApps maps a host application to the versions a tool
	// accepts. An empty version list accepts any version; an empty map
	// accepts any host.
	SupportedApps map[dcc.App][]string `yaml:"supported_apps,omitempty"`

	// EtcdEndpoints enables session discovery when non-empty.
	EtcdEndpoints []string `yaml:"etcd_endpoints,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		BasePort:       dcc.BasePort,
		TimeoutSeconds: 20,
	}
}

// Timeout returns the command timeout as a duration.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads the config at path, filling unset fields from Default. A
// missing file is not an error: the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.BasePort <= 0 {
		cfg.BasePort = dcc.BasePort
	}
	for app := range cfg.SupportedApps {
		if !dcc.Valid(app) {
			return cfg, fmt.Errorf("config %s: unsupported app %q", path, app)
		}
	}
	return cfg, nil
}

// Save writes the config to path.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
