package config

import "potchain/native/fees"

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Election captures the validator election parameters applied on first start.
type Election struct {
	TotalValidators     uint32 `toml:"TotalValidators"`
	SeedTrustValidators uint32 `toml:"SeedTrustValidators"`
	// MinVoteThreshold is a base-10 vote weight.
	MinVoteThreshold    string `toml:"MinVoteThreshold"`
	MaxVoteNum          uint32 `toml:"MaxVoteNum"`
	ResetLedgerOnNewEra bool   `toml:"ResetLedgerOnNewEra"`
}

// Era controls the session schedule.
type Era struct {
	SessionsPerEra uint32 `toml:"SessionsPerEra"`
	ForceEra       string `toml:"ForceEra"`
	// SessionDurationSeconds drives the built-in session clock. Zero leaves
	// session boundaries to an external engine.
	SessionDurationSeconds uint64 `toml:"SessionDurationSeconds"`
}

// Registry bounds the system token link lists.
type Registry struct {
	MaxLinksPerToken uint32 `toml:"MaxLinksPerToken"`
	MaxLinksPerPara  uint32 `toml:"MaxLinksPerPara"`
}

// Fees configures the fee bridge.
type Fees struct {
	StrictTokenPolicy bool              `toml:"StrictTokenPolicy"`
	DefaultFee        uint64            `toml:"DefaultFee"`
	Collector         string            `toml:"Collector"`
	Table             []fees.TableEntry `toml:"table"`
}

// RPC configures the HTTP API.
type RPC struct {
	// JWTSecretEnv names the environment variable holding the HS256 secret
	// for admin requests. Admin routes are disabled when it is unset.
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	Burst              int     `toml:"Burst"`
	EventBuffer        int     `toml:"EventBuffer"`
}

// Telemetry configures the OTLP exporters. Both are off by default.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the "key=value,key2=value2" form.
	Headers string `toml:"Headers"`
	Metrics bool   `toml:"Metrics"`
	Traces  bool   `toml:"Traces"`
}

// EventLog configures the queryable event index. An empty driver disables it.
type EventLog struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}
