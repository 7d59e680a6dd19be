// Package config loads the relay configuration: a YAML file for tunables,
// with ${ENV_VAR} substitution, plus an environment-only credentials struct.
package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance InstanceConfig  `yaml:"instance"`
	Relay    SchedulerConfig `yaml:"relay"`
	Catalog  CatalogConfig   `yaml:"catalog"`
	Server   ServerConfig    `yaml:"server"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// SchedulerConfig holds the subscription scheduler tunables. The defaults
// encode the broker's published limits; change them only if the broker does.
type SchedulerConfig struct {
	SymbolsPerConnection int           `yaml:"symbols_per_connection"`
	Stride               int           `yaml:"stride"`
	CycleInterval        time.Duration `yaml:"cycle_interval"`
	CommandGap           time.Duration `yaml:"command_gap"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
}

// CatalogConfig holds instrument catalog settings.
type CatalogConfig struct {
	URL       string        `yaml:"url"`
	CachePath string        `yaml:"cache_path"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// ServerConfig holds the egress HTTP server settings.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	Env        string `yaml:"env"`         // "development" or "production"
	ConfigFile string `yaml:"config_file"` // served at /config.json
}
