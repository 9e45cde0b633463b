// Package config loads bbs1ctl settings from a YAML file
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/james-see/bbs1ctl/pkg/device"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds the tool settings
type Config struct {
	PortPattern string        `yaml:"port_pattern"`
	Timeout     time.Duration `yaml:"timeout"`
	LogLevel    string        `yaml:"log_level"`
	Development bool          `yaml:"development"`
	ServerPort  string        `yaml:"server_port"`
	Simulate    bool          `yaml:"simulate"`
	PageOrder   bool          `yaml:"strict_page_order"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		PortPattern: device.DefaultPortPattern,
		Timeout:     device.DefaultTimeout,
		LogLevel:    "info",
		ServerPort:  "8080",
	}
}

// Load reads path and fills unset fields with defaults. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings over the defaults
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.PortPattern == "" {
		c.PortPattern = def.PortPattern
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ServerPort == "" {
		c.ServerPort = def.ServerPort
	}
}

// Opener returns the function that opens the device transport: the MIDI
// ports matching PortPattern, or a simulator serving the demo file
func (c Config) Opener(logger *zap.Logger) func() (device.Transport, error) {
	if c.Simulate {
		return func() (device.Transport, error) {
			return device.NewSimulator(device.DemoFile(), device.WithSimLogger(logger)), nil
		}
	}
	return func() (device.Transport, error) {
		tr, err := device.OpenMIDI(c.PortPattern, logger)
		if err != nil {
			return nil, err
		}
		return tr, nil
	}
}

// SessionOptions returns the device session options for these settings
func (c Config) SessionOptions(logger *zap.Logger) []device.Option {
	opts := []device.Option{device.WithLogger(logger), device.WithTimeout(c.Timeout)}
	if c.PageOrder {
		opts = append(opts, device.WithPageOrderCheck())
	}
	return opts
}

// DecodeOptions returns the options for decoding dumps read from disk or
// uploaded
func (c Config) DecodeOptions(logger *zap.Logger) []tempo.DecodeOption {
	opts := []tempo.DecodeOption{tempo.WithLogger(logger)}
	if c.PageOrder {
		opts = append(opts, tempo.WithPageOrderCheck())
	}
	return opts
}
