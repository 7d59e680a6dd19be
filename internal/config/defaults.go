package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultSymbolsPerConnection = 3000
	DefaultStride               = 300
	DefaultCycleInterval        = 10 * time.Second
	DefaultCommandGap           = 1 * time.Second
	DefaultMaxRetries           = 3
	DefaultRetryDelay           = 2 * time.Second
	DefaultConnectTimeout       = 30 * time.Second
	DefaultCatalogURL           = "https://api.kite.trade/instruments"
	DefaultCachePath            = "instruments_cache.json"
	DefaultCacheTTL             = 24 * time.Hour
	DefaultServerAddr           = ":5000"
	DefaultServerEnv            = "production"
	DefaultConfigFile           = "config.json"
)

func (c *RelayConfig) applyDefaults() {
	if c.Relay.SymbolsPerConnection == 0 {
		c.Relay.SymbolsPerConnection = DefaultSymbolsPerConnection
	}
	if c.Relay.Stride == 0 {
		c.Relay.Stride = DefaultStride
	}
	if c.Relay.CycleInterval == 0 {
		c.Relay.CycleInterval = DefaultCycleInterval
	}
	if c.Relay.CommandGap == 0 {
		c.Relay.CommandGap = DefaultCommandGap
	}
	if c.Relay.MaxRetries == 0 {
		c.Relay.MaxRetries = DefaultMaxRetries
	}
	if c.Relay.RetryDelay == 0 {
		c.Relay.RetryDelay = DefaultRetryDelay
	}
	if c.Relay.ConnectTimeout == 0 {
		c.Relay.ConnectTimeout = DefaultConnectTimeout
	}

	if c.Catalog.URL == "" {
		c.Catalog.URL = DefaultCatalogURL
	}
	if c.Catalog.CachePath == "" {
		c.Catalog.CachePath = DefaultCachePath
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = DefaultCacheTTL
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.Env == "" {
		c.Server.Env = DefaultServerEnv
	}
	if c.Server.ConfigFile == "" {
		c.Server.ConfigFile = DefaultConfigFile
	}
}
