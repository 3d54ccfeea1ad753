// Package config loads drainkit settings from TOML.
package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/logging"
	"github.com/vinayprograms/drainkit/outstanding"
)

// Bus backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Config is the root of a drainkit TOML file.
type Config struct {
	Registry  RegistrySection  `toml:"registry"`
	Logging   LoggingSection   `toml:"logging"`
	Shutdown  ShutdownSection  `toml:"shutdown"`
	Telemetry TelemetrySection `toml:"telemetry"`
	Bus       BusSection       `toml:"bus"`
}

// RegistrySection configures the outstanding-task registry.
type RegistrySection struct {
	// Timeout bounds the registry drain. Zero waits indefinitely.
	Timeout Duration `toml:"timeout"`
}

// LoggingSection configures the console logger.
type LoggingSection struct {
	Level     string `toml:"level"`
	Component string `toml:"component"`
}

// ShutdownSection configures the process shutdown coordinator.
type ShutdownSection struct {
	Timeout         Duration `toml:"timeout"`
	Phase           int      `toml:"phase"`
	ContinueOnError bool     `toml:"continue_on_error"`
}

// TelemetrySection configures OTLP trace export.
type TelemetrySection struct {
	Enabled        bool              `toml:"enabled"`
	ServiceName    string            `toml:"service_name"`
	ServiceVersion string            `toml:"service_version"`
	Endpoint       string            `toml:"endpoint"`
	Protocol       string            `toml:"protocol"`
	Insecure       bool              `toml:"insecure"`
	Headers        map[string]string `toml:"headers"`
	InstanceID     string            `toml:"instance_id"`
	FlushInterval  Duration          `toml:"flush_interval"`
}

// BusSection configures where registry events are published.
type BusSection struct {
	Backend string `toml:"backend"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
	Name    string `toml:"name"`
	Token   string `toml:"token"`
}

// Duration is a TOML duration. It accepts a duration string ("1s",
// "500ms"), a string of bare milliseconds ("1500") or an integer number of
// milliseconds.
type Duration struct {
	time.Duration
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		parsed, err := outstanding.ParseTimeout(val)
		if err != nil {
			return err
		}
		d.Duration = parsed
	case int64:
		if val < 0 {
			return errors.InvalidInput(fmt.Sprintf("negative duration %d", val))
		}
		if val > math.MaxInt64/int64(time.Millisecond) {
			return errors.InvalidInput(fmt.Sprintf("duration %d out of range", val))
		}
		d.Duration = time.Duration(val) * time.Millisecond
	default:
		return errors.InvalidInput(fmt.Sprintf("unsupported duration value %v (%T)", v, v))
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingSection{
			Level:     "info",
			Component: "drainkit",
		},
		Shutdown: ShutdownSection{
			Timeout:         Duration{30 * time.Second},
			Phase:           100,
			ContinueOnError: true,
		},
		Telemetry: TelemetrySection{
			ServiceName: "drainkit",
			Protocol:    "grpc",
		},
		Bus: BusSection{
			Backend: BackendMemory,
			Subject: "drainkit.tasks",
		},
	}
}

// Load reads and parses a TOML file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, fmt.Sprintf("reading config %s", path))
	}
	cfg, err := Parse(string(content))
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("loading config %s", path))
	}
	return cfg, nil
}

// Parse parses TOML content over Default and validates the result.
// Unknown keys are rejected.
func Parse(content string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parsing config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, errors.InvalidInput(fmt.Sprintf("unknown config keys: %s", strings.Join(keys, ", ")))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}
	if c.Shutdown.Phase < 0 {
		return errors.InvalidInput("shutdown.phase must not be negative")
	}
	if err := c.RegistryConfig().Validate(); err != nil {
		return errors.Wrap(err, "registry")
	}
	sc := c.ShutdownConfig()
	if err := sc.Validate(); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return errors.InvalidInput(fmt.Sprintf("telemetry.protocol %q (use grpc or http)", c.Telemetry.Protocol))
		}
	}
	switch c.Bus.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.Bus.URL == "" {
			return errors.InvalidInput("bus.url is required for the nats backend")
		}
	default:
		return errors.InvalidInput(fmt.Sprintf("bus.backend %q (use memory or nats)", c.Bus.Backend))
	}
	return nil
}

// Write encodes c as TOML.
func (c *Config) Write(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return nil
}
