package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transports
const (
	TransportMemory = "memory"
	TransportSQLite = "sqlite"
	TransportHTTP   = "http"
)

// ValidTransports lists the supported bus transports.
var ValidTransports = []string{TransportMemory, TransportSQLite, TransportHTTP}

// DefaultPath is read when no --config flag is given.
const DefaultPath = "shapes.yaml"

// Config holds the shapes configuration.
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BusConfig configures how processes of a domain find each other.
type BusConfig struct {
	Transport       string `yaml:"transport"` // memory, sqlite, http
	Dir             string `yaml:"dir"`       // sqlite database directory
	URL             string `yaml:"url"`       // durable-streams base URL
	PollInterval    string `yaml:"poll_interval"`
	LivelinessLease string `yaml:"liveliness_lease"`
	HistoryDepth    int    `yaml:"history_depth"`
	Durability      string `yaml:"durability"` // volatile, transient-local
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
	File   string `yaml:"file"`   // empty means stderr
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	File     string `yaml:"file"`
	Endpoint string `yaml:"endpoint"` // OTLP/HTTP collector host:port, replaces file
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Transport:       TransportSQLite,
			Dir:             filepath.Join(os.TempDir(), "shapes"),
			PollInterval:    "50ms",
			LivelinessLease: "5s",
			HistoryDepth:    1,
			Durability:      "volatile",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			File:    "shapes-telemetry.jsonl",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SHAPES_TRANSPORT"); v != "" {
		c.Bus.Transport = v
	}
	if v := os.Getenv("SHAPES_BUS_DIR"); v != "" {
		c.Bus.Dir = v
	}
	if v := os.Getenv("SHAPES_BUS_URL"); v != "" {
		c.Bus.URL = v
	}
	if v := os.Getenv("SHAPES_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SHAPES_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("SHAPES_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
}

// GetPollInterval returns the poll interval as a duration.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Bus.PollInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

// GetLivelinessLease returns the liveliness lease as a duration.
// Zero disables liveliness checks.
func (c *Config) GetLivelinessLease() time.Duration {
	d, err := time.ParseDuration(c.Bus.LivelinessLease)
	if err != nil || d < 0 {
		return 5 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	valid := false
	for _, t := range ValidTransports {
		if c.Bus.Transport == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid transport: %q (valid: %s)", c.Bus.Transport, strings.Join(ValidTransports, ", "))
	}

	if c.Bus.Transport == TransportSQLite && c.Bus.Dir == "" {
		return fmt.Errorf("sqlite transport needs bus.dir (or SHAPES_BUS_DIR)")
	}
	if c.Bus.Transport == TransportHTTP && c.Bus.URL == "" {
		return fmt.Errorf("http transport needs bus.url (or SHAPES_BUS_URL)")
	}

	if c.Bus.PollInterval != "" {
		if d, err := time.ParseDuration(c.Bus.PollInterval); err != nil || d <= 0 {
			return fmt.Errorf("invalid poll_interval: %q", c.Bus.PollInterval)
		}
	}
	if c.Bus.LivelinessLease != "" {
		if d, err := time.ParseDuration(c.Bus.LivelinessLease); err != nil || d < 0 {
			return fmt.Errorf("invalid liveliness_lease: %q", c.Bus.LivelinessLease)
		}
	}
	if c.Bus.HistoryDepth < 0 {
		return fmt.Errorf("invalid history_depth: %d", c.Bus.HistoryDepth)
	}

	switch c.Bus.Durability {
	case "", "volatile", "transient-local":
	default:
		return fmt.Errorf("invalid durability: %q (valid: volatile, transient-local)", c.Bus.Durability)
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %q (valid: console, json)", c.Logging.Format)
	}

	return nil
}
