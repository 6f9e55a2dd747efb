package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"potchain/core/era"
	"potchain/core/types"
	"potchain/native/fees"
	"potchain/native/pot"
	"potchain/native/systoken"
	"potchain/storage"
)

type Config struct {
	DataDir        string    `toml:"DataDir"`
	StateBackend   string    `toml:"StateBackend"`
	GenesisFile    string    `toml:"GenesisFile"`
	RPCAddress     string    `toml:"RPCAddress"`
	MetricsAddress string    `toml:"MetricsAddress"`
	Environment    string    `toml:"Environment"`
	Logging        Logging   `toml:"logging"`
	Election       Election  `toml:"election"`
	Era            Era       `toml:"era"`
	Registry       Registry  `toml:"registry"`
	Fees           Fees      `toml:"fees"`
	RPC            RPC       `toml:"rpc"`
	Telemetry      Telemetry `toml:"telemetry"`
	EventLog       EventLog  `toml:"eventlog"`
}

// DefaultConfig returns the configuration written for a fresh node.
func DefaultConfig() *Config {
	params := pot.DefaultParams()
	limits := systoken.DefaultLimits()
	eras := era.DefaultConfig()
	return &Config{
		DataDir:        "./pot-data",
		StateBackend:   storage.BackendLevelDB,
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		Environment:    "dev",
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Election: Election{
			TotalValidators:     params.TotalValidators,
			SeedTrustValidators: params.SeedTrustValidators,
			MinVoteThreshold:    params.MinVoteThreshold.String(),
			MaxVoteNum:          pot.DefaultMaxVoteNum,
		},
		Era: Era{
			SessionsPerEra: eras.SessionsPerEra,
			ForceEra:       eras.ForceEra.String(),
		},
		Registry: Registry{
			MaxLinksPerToken: limits.MaxLinksPerToken,
			MaxLinksPerPara:  limits.MaxLinksPerPara,
		},
		Fees: Fees{
			StrictTokenPolicy: true,
			Table:             []fees.TableEntry{},
		},
		RPC: RPC{
			JWTSecretEnv:       "POT_ADMIN_JWT_SECRET",
			RateLimitPerSecond: 20,
			Burst:              40,
			EventBuffer:        128,
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318"},
		EventLog:  EventLog{Driver: "sqlite", DSN: "events.db"},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with the defaults. Keys the node does not understand are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.Fees.Table == nil {
		cfg.Fees.Table = []fees.TableEntry{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ElectionParams converts the election section.
func (c *Config) ElectionParams() (pot.Params, error) {
	threshold, err := types.ParseVoteWeight(c.Election.MinVoteThreshold)
	if err != nil {
		return pot.Params{}, fmt.Errorf("election.MinVoteThreshold: %w", err)
	}
	params := pot.Params{
		TotalValidators:     c.Election.TotalValidators,
		SeedTrustValidators: c.Election.SeedTrustValidators,
		MinVoteThreshold:    threshold,
	}
	if err := params.Validate(); err != nil {
		return pot.Params{}, err
	}
	return params, nil
}

// EraConfig converts the era section.
func (c *Config) EraConfig() (era.Config, error) {
	cfg := era.Config{SessionsPerEra: c.Era.SessionsPerEra}
	if strings.TrimSpace(c.Era.ForceEra) != "" {
		mode, err := era.ParseForcing(c.Era.ForceEra)
		if err != nil {
			return era.Config{}, fmt.Errorf("era.ForceEra: %w", err)
		}
		cfg.ForceEra = mode
	}
	if err := cfg.Validate(); err != nil {
		return era.Config{}, fmt.Errorf("era: %w", err)
	}
	return cfg, nil
}

// RegistryLimits converts the registry section.
func (c *Config) RegistryLimits() systoken.Limits {
	return systoken.Limits{
		MaxLinksPerToken: c.Registry.MaxLinksPerToken,
		MaxLinksPerPara:  c.Registry.MaxLinksPerPara,
	}
}

// FeeTable builds the fee table from the fees section.
func (c *Config) FeeTable() (*fees.Table, error) {
	return fees.NewTable(c.Fees.DefaultFee, c.Fees.Table)
}

// FeeCollector parses the account receiving settled fees. An empty value
// selects the zero account.
func (c *Config) FeeCollector() (types.AccountID, error) {
	if strings.TrimSpace(c.Fees.Collector) == "" {
		return types.AccountID{}, nil
	}
	id, err := types.ParseAccountID(c.Fees.Collector)
	if err != nil {
		return types.AccountID{}, fmt.Errorf("fees.Collector: %w", err)
	}
	return id, nil
}
