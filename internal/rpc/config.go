package rpc

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized client options as a plain yaml-tagged
// struct with a normalize step that fills in defaults for zero-valued
// fields.
//
// AutoReconnect and HeartbeatInterval are pointers because their default
// differs from their Go zero value ("unset" must mean "apply the
// documented default", not "false" or "0 milliseconds"): a caller who
// wants to disable either one sets it explicitly rather than leaving it
// zero.
type Config struct {
	URL                   string         `yaml:"url"`
	Protocols             []string       `yaml:"protocols"`
	AutoReconnect         *bool          `yaml:"auto_reconnect"`
	ReconnectInterval     time.Duration  `yaml:"reconnect_interval"`
	MaxReconnectAttempts  int            `yaml:"max_reconnect_attempts"`
	DefaultTimeout        time.Duration  `yaml:"default_timeout"`
	HeartbeatInterval     *time.Duration `yaml:"heartbeat_interval"`
	HeartbeatMethod       string         `yaml:"heartbeat_method"`
	Debug                 bool           `yaml:"debug"`
}

const (
	defaultReconnectInterval    = 3000 * time.Millisecond
	defaultMaxReconnectAttempts = 5
	defaultTimeout              = 15000 * time.Millisecond
	defaultHeartbeatInterval    = 30000 * time.Millisecond
	defaultHeartbeatMethod      = "ping"
)

// LoadConfigYAML reads and parses a Config from a YAML file, then
// normalizes it. This is the secondary construction path; most callers
// embedding this package build a Config literal instead.
func LoadConfigYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

// normalize fills in every option's documented default in place.
func (c *Config) normalize() {
	if c.AutoReconnect == nil {
		v := true
		c.AutoReconnect = &v
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.HeartbeatInterval == nil {
		v := defaultHeartbeatInterval
		c.HeartbeatInterval = &v
	}
	if c.HeartbeatMethod == "" {
		c.HeartbeatMethod = defaultHeartbeatMethod
	}
}

func (c *Config) autoReconnectEnabled() bool {
	return c.AutoReconnect != nil && *c.AutoReconnect
}

func (c *Config) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval == nil {
		return 0
	}
	return *c.HeartbeatInterval
}
