package era

import "fmt"

// Config describes how sessions are grouped into eras.
type Config struct {
	// SessionsPerEra is the number of sessions after which a new era is
	// started when no forcing mode overrides the schedule. The value must be
	// greater than zero.
	SessionsPerEra uint32

	// ForceEra is the forcing mode applied on first start. A mode already
	// persisted in state takes precedence.
	ForceEra Forcing
}

// DefaultConfig returns a six session era without forcing.
func DefaultConfig() Config {
	return Config{
		SessionsPerEra: 6,
		ForceEra:       NotForcing,
	}
}

// Validate ensures the configuration is self-consistent.
func (c Config) Validate() error {
	if c.SessionsPerEra == 0 {
		return fmt.Errorf("sessions per era must be greater than zero")
	}
	if !c.ForceEra.Valid() {
		return fmt.Errorf("unknown forcing mode %d", c.ForceEra)
	}
	return nil
}
