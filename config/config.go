// Package config loads this module's configuration from a YAML file
// with an environment-variable overlay, tagged with both yaml: and
// env: struct tags. It carries only the server/storage/wire/logging
// sections the subscription core actually reads; a process-lifetime
// in-memory execution core has no backup, security, or health-check
// configuration of its own (see DESIGN.md).
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mantisdb/livequery/dberror"
)

// Config holds the whole of this module's runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Wire    WireConfig    `yaml:"wire"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds a host and port, joined by ServerAddr. The demo
// CLI does not open a listener and does not read this section.
type ServerConfig struct {
	Host string `yaml:"host" env:"LIVEQUERY_HOST"`
	Port int    `yaml:"port" env:"LIVEQUERY_PORT"`
}

// StorageConfig configures the in-memory storage engine. Address names
// the engine; TableCapacityHint is loaded but the engine does not read it.
type StorageConfig struct {
	Address          string `yaml:"address" env:"LIVEQUERY_STORAGE_ADDRESS"`
	TableCapacityHint int   `yaml:"table_capacity_hint" env:"LIVEQUERY_TABLE_CAPACITY_HINT"`
}

// WireConfig chooses the transport codec: "lz4", "snappy", or "zstd".
type WireConfig struct {
	Codec string `yaml:"codec" env:"LIVEQUERY_WIRE_CODEC"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LIVEQUERY_LOG_LEVEL"`
	JSON  bool   `yaml:"json" env:"LIVEQUERY_LOG_JSON"`
}

// Default returns a configuration with sane defaults for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080},
		Storage: StorageConfig{
			Address:           "local",
			TableCapacityHint: 1024,
		},
		Wire:    WireConfig{Codec: "lz4"},
		Logging: LoggingConfig{Level: "info", JSON: true},
	}
}

// Load reads a YAML file at path into a Config seeded with Default,
// then applies LoadFromEnv on top. An empty path skips the file read
// and returns defaults overlaid with the environment alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, dberror.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, dberror.Wrapf(err, "config: parse %s", path)
		}
	}
	cfg.LoadFromEnv()
	return cfg, nil
}

// LoadFromEnv overlays environment variables named by each field's
// env tag.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("LIVEQUERY_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("LIVEQUERY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LIVEQUERY_STORAGE_ADDRESS"); v != "" {
		c.Storage.Address = v
	}
	if v := os.Getenv("LIVEQUERY_TABLE_CAPACITY_HINT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.TableCapacityHint = n
		}
	}
	if v := os.Getenv("LIVEQUERY_WIRE_CODEC"); v != "" {
		c.Wire.Codec = v
	}
	if v := os.Getenv("LIVEQUERY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIVEQUERY_LOG_JSON"); v != "" {
		c.Logging.JSON = strings.EqualFold(v, "true")
	}
}

// ServerAddr returns the configured server host and port as "host:port".
func (c *Config) ServerAddr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ParseLogLevel maps the configured level name onto logging.LogLevel's
// ordinal values without importing the logging package directly here,
// avoiding a config<->logging import cycle should logging ever need
// config for its own setup.
func ParseLogLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return 0
	case "warn", "warning":
		return 2
	case "error":
		return 3
	case "fatal":
		return 4
	default:
		return 1 // info
	}
}
