package config

import (
	"github.com/vinayprograms/drainkit/bus"
	"github.com/vinayprograms/drainkit/logging"
	"github.com/vinayprograms/drainkit/outstanding"
	"github.com/vinayprograms/drainkit/shutdown"
	"github.com/vinayprograms/drainkit/telemetry"
)

// RegistryConfig returns the [registry] section as an outstanding.Config.
func (c *Config) RegistryConfig() outstanding.Config {
	return outstanding.Config{Timeout: c.Registry.Timeout.Duration}
}

// ShutdownConfig returns the [shutdown] section as a shutdown.Config.
func (c *Config) ShutdownConfig() shutdown.Config {
	return shutdown.Config{
		DefaultTimeout:  c.Shutdown.Timeout.Duration,
		DefaultPhase:    c.Shutdown.Phase,
		ContinueOnError: c.Shutdown.ContinueOnError,
	}
}

// ProviderConfig returns the [telemetry] section as a telemetry.ProviderConfig.
func (c *Config) ProviderConfig() telemetry.ProviderConfig {
	return telemetry.ProviderConfig{
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: c.Telemetry.ServiceVersion,
		Endpoint:       c.Telemetry.Endpoint,
		Protocol:       c.Telemetry.Protocol,
		Insecure:       c.Telemetry.Insecure,
		Headers:        c.Telemetry.Headers,
		InstanceID:     c.Telemetry.InstanceID,
		FlushInterval:  c.Telemetry.FlushInterval.Duration,
	}
}

// NATSConfig returns the [bus] section as a bus.NATSConfig.
func (c *Config) NATSConfig() bus.NATSConfig {
	cfg := bus.DefaultNATSConfig()
	if c.Bus.URL != "" {
		cfg.URL = c.Bus.URL
	}
	cfg.Name = c.Bus.Name
	cfg.Token = c.Bus.Token
	return cfg
}

// Logger builds a logger from the [logging] section.
func (c *Config) Logger() *logging.Logger {
	l := logging.New().WithComponent(c.Logging.Component)
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		l.SetLevel(level)
	}
	return l
}

// OpenBus connects the configured bus backend.
func (c *Config) OpenBus() (bus.MessageBus, error) {
	if c.Bus.Backend == BackendNATS {
		b, err := bus.NewNATSBus(c.NATSConfig())
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return bus.NewMemoryBus(bus.DefaultConfig()), nil
}
