// Package config loads the sessiond YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/tcpserver"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "sessiond.yaml"

// Config is the root of the configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig names the listener and carries the tcpserver settings,
// including the per-session buffer sizes under "session".
type ServerConfig struct {
	Name             string `yaml:"name"`
	Addr             string `yaml:"addr"`
	tcpserver.Config `yaml:",inline"`
}

// LogConfig selects the log level and an optional directory for daily
// rotated log files. An empty Dir logs to stdout only.
type LogConfig struct {
	Service string `yaml:"service"`
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:   "sessiond",
			Addr:   ":7000",
			Config: tcpserver.DefaultConfig(),
		},
		Log: LogConfig{
			Service: "sessiond",
			Level:   "info",
		},
	}
}

// Load reads the configuration from the given YAML file path on top of
// Default. If the file does not exist, it returns Default with no error.
//
// Parameters:
//   - path: The YAML file to read
//
// Returns:
//   - The validated configuration, or a read, parse or validation error
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	if c.Server.MaxConnsPerIP < 0 {
		errs = append(errs, fmt.Errorf("server.max_conns_per_ip %d is negative", c.Server.MaxConnsPerIP))
	}

	if c.Server.MaxConnsPerIP > 0 && c.Server.ThrottleWindow < time.Second {
		errs = append(errs, fmt.Errorf("server.throttle_window %s is shorter than 1s", c.Server.ThrottleWindow))
	}

	if c.Server.ReadBufferBytes < 0 || c.Server.WriteBufferBytes < 0 {
		errs = append(errs, errors.New("server socket buffer sizes must not be negative"))
	}

	if err := c.Server.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server.session: %w", err))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// NewLogger builds the logger described by c. With Dir set, entries go to
// stdout and to a daily rotated file under Dir; otherwise they go to w.
//
// Parameters:
//   - w: Console destination when Dir is empty
//
// Returns:
//   - The logger, or an error for a bad level or an unusable Dir
func (c LogConfig) NewLogger(w io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	if c.Dir != "" {
		return logger.NewZerologFileLogger(c.Service, c.Dir, level)
	}

	return logger.NewZerologLogger(zerolog.New(w), c.Service, level), nil
}
