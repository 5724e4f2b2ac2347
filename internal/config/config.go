// Package config handles magnet-door configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/magnet-door/internal/gpio"
)

// DefaultSearchPaths returns the config file search order.
// Then: ./config.yaml, ~/.config/magnet-door/config.yaml, /etc/magnet-door/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "magnet-door", "config.yaml"))
	}

	paths = append(paths, "/etc/magnet-door/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all magnet-door configuration.
type Config struct {
	Poll          time.Duration `yaml:"poll"`
	DoorDebounce  time.Duration `yaml:"door_debounce"`
	PostInterval  time.Duration `yaml:"post_interval"`
	ConnTimeout   time.Duration `yaml:"conn_timeout"`
	ButtonHold    time.Duration `yaml:"button_hold"`
	BlinkInterval time.Duration `yaml:"blink_interval"`

	Pins   gpio.Pins    `yaml:"pins"`
	WiFi   WiFiConfig   `yaml:"wifi"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Server ServerConfig `yaml:"server"`
	Influx InfluxConfig `yaml:"influxdb"`
	HTTP   HTTPConfig   `yaml:"http"`
	Store  StoreConfig  `yaml:"store"`

	LogLevel string `yaml:"log_level"`
}

// WiFiConfig selects the wireless interface.
type WiFiConfig struct {
	Interface string `yaml:"interface"`
}

// MQTTConfig configures the remote event log broker.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// ServerConfig configures the telemetry HTTP endpoint. URL is only used
// until an operator stores one with "Config Url".
type ServerConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
}

// InfluxConfig configures the occupancy history. Empty URL disables it.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// HTTPConfig configures the status server. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig selects the settings store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "image" or "sqlite"
	Path   string `yaml:"path"`
}

// Post interval bounds.
const (
	MinPostInterval = 1000 * time.Millisecond
	MaxPostInterval = 3000 * time.Millisecond
)

// Load reads configuration from a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Poll:          50 * time.Millisecond,
		DoorDebounce:  1000 * time.Millisecond,
		PostInterval:  2000 * time.Millisecond,
		ConnTimeout:   20000 * time.Millisecond,
		ButtonHold:    500 * time.Millisecond,
		BlinkInterval: 1500 * time.Millisecond,
		Pins:          gpio.DefaultPins(),
		WiFi:          WiFiConfig{Interface: "wlan0"},
		MQTT: MQTTConfig{
			Broker:     "tcp://192.168.1.200:1883",
			ClientID:   "magnet-door",
			BufferSize: 100,
		},
		Server: ServerConfig{
			URL:             "http://192.168.1.200:8080/people",
			Timeout:         2 * time.Second,
			BreakerFailures: 3,
			BreakerOpen:     30 * time.Second,
		},
		HTTP:     HTTPConfig{Listen: ":80"},
		Store:    StoreConfig{Driver: "image", Path: "/var/lib/magnet-door/settings.img"},
		LogLevel: "info",
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	var errs []error
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be positive, got %v", c.Poll))
	}
	if c.DoorDebounce < 0 {
		errs = append(errs, fmt.Errorf("door_debounce must not be negative, got %v", c.DoorDebounce))
	}
	if c.PostInterval < MinPostInterval || c.PostInterval > MaxPostInterval {
		errs = append(errs, fmt.Errorf("post_interval must be between %v and %v, got %v",
			MinPostInterval, MaxPostInterval, c.PostInterval))
	}
	if c.ConnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("conn_timeout must be positive, got %v", c.ConnTimeout))
	}
	switch c.Store.Driver {
	case "image", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be image or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
