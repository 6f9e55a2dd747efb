package config

import (
	"fmt"
	"log/slog"
	"strings"

	"potchain/storage"
)

// Validate checks every section and the conversions the node performs at
// startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	switch c.StateBackend {
	case "", storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("StateBackend must be %q or %q, got %q", storage.BackendLevelDB, storage.BackendBolt, c.StateBackend)
	}
	if _, err := c.ElectionParams(); err != nil {
		return err
	}
	if _, err := c.EraConfig(); err != nil {
		return err
	}
	if err := c.RegistryLimits().Validate(); err != nil {
		return err
	}
	if _, err := c.FeeTable(); err != nil {
		return err
	}
	if _, err := c.FeeCollector(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limit and burst must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.EventLog.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("eventlog: unsupported driver %q", c.EventLog.Driver)
	}
	if strings.TrimSpace(c.EventLog.Driver) != "" && strings.TrimSpace(c.EventLog.DSN) == "" {
		return fmt.Errorf("eventlog: DSN required when a driver is set")
	}
	return nil
}

// ParseLevel maps a level name onto slog levels. Empty means info.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", value)
	}
}
