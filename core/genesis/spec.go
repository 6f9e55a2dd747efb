package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"potchain/core/era"
	"potchain/core/types"
	"potchain/native/systoken"
)

// GenesisSpec is the initial state applied to an empty database. Unset
// counts fall back to the node configuration.
type GenesisSpec struct {
	TotalValidators     *uint32           `yaml:"total_validators,omitempty"`
	SeedTrustCount      *uint32           `yaml:"seed_trust_count,omitempty"`
	SeedTrust           []types.AccountID `yaml:"seed_trust_validators"`
	MinVoteThreshold    *types.VoteWeight `yaml:"min_vote_threshold,omitempty"`
	ForceEra            *era.Forcing      `yaml:"force_era,omitempty"`
	PotEnabledAtGenesis bool              `yaml:"pot_enabled_at_genesis"`
	VoteStatus          []VoteSpec        `yaml:"vote_status"`
	SystemTokens        []TokenSpec       `yaml:"system_tokens"`
	Balances            []BalanceSpec     `yaml:"balances"`
}

// VoteSpec seeds one vote ledger entry.
type VoteSpec struct {
	Token     types.SystemTokenID `yaml:"token"`
	Candidate types.AccountID     `yaml:"candidate"`
	Weight    types.VoteWeight    `yaml:"weight"`
}

// TokenSpec registers one system token.
type TokenSpec struct {
	ID       types.SystemTokenID `yaml:"id"`
	Links    []types.LocalLink   `yaml:"links"`
	Rate     uint64              `yaml:"rate"`
	Metadata systoken.Metadata   `yaml:"metadata"`
}

// BalanceSpec funds an account for fee payments. A nil token funds the
// native currency.
type BalanceSpec struct {
	Account types.AccountID      `yaml:"account"`
	Token   *types.SystemTokenID `yaml:"token,omitempty"`
	Amount  uint64               `yaml:"amount"`
}

// LoadGenesisSpec reads and validates a YAML genesis file. Unknown keys are
// rejected.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := DecodeGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// DecodeGenesisSpec parses and validates a YAML genesis document.
func DecodeGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// Validate checks the spec for internal consistency.
func (s *GenesisSpec) Validate() error {
	if s.TotalValidators != nil && s.SeedTrustCount != nil && *s.SeedTrustCount > *s.TotalValidators {
		return fmt.Errorf("seed_trust_count %d exceeds total_validators %d", *s.SeedTrustCount, *s.TotalValidators)
	}
	seen := make(map[types.AccountID]struct{}, len(s.SeedTrust))
	for i, who := range s.SeedTrust {
		if who.IsZero() {
			return fmt.Errorf("seed_trust_validators[%d]: zero account", i)
		}
		if _, dup := seen[who]; dup {
			return fmt.Errorf("seed_trust_validators[%d]: duplicate %s", i, who)
		}
		seen[who] = struct{}{}
	}
	if s.ForceEra != nil && !s.ForceEra.Valid() {
		return fmt.Errorf("force_era: unknown mode %d", uint8(*s.ForceEra))
	}
	if s.PotEnabledAtGenesis && len(s.VoteStatus) == 0 {
		return fmt.Errorf("pot_enabled_at_genesis requires a non-empty vote_status")
	}
	if !s.PotEnabledAtGenesis && len(s.VoteStatus) > 0 {
		return fmt.Errorf("vote_status requires pot_enabled_at_genesis")
	}
	for i, vote := range s.VoteStatus {
		if vote.Candidate.IsZero() {
			return fmt.Errorf("vote_status[%d]: candidate required", i)
		}
	}
	tokens := make(map[types.SystemTokenID]struct{}, len(s.SystemTokens))
	for i, token := range s.SystemTokens {
		if token.Rate == 0 {
			return fmt.Errorf("system_tokens[%d]: rate must be positive", i)
		}
		if _, dup := tokens[token.ID]; dup {
			return fmt.Errorf("system_tokens[%d]: duplicate token %s", i, token.ID)
		}
		tokens[token.ID] = struct{}{}
	}
	for i, bal := range s.Balances {
		if bal.Account.IsZero() {
			return fmt.Errorf("balances[%d]: account required", i)
		}
	}
	return nil
}
