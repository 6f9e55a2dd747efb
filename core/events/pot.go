package events

import (
	"strconv"

	"potchain/core/types"
)

const (
	TypeVotePointsAdded            = "pot.vote_points_added"
	TypeSeedTrustNumChanged        = "pot.seed_trust_num_changed"
	TypeTotalValidatorsChanged     = "pot.total_validators_changed"
	TypeSeedTrustAdded             = "pot.seed_trust_added"
	TypeMinVotePointsChanged       = "pot.min_vote_points_changed"
	TypeSeedTrustValidatorsElected = "pot.seed_trust_validators_elected"
	TypePotValidatorsElected       = "pot.pot_validators_elected"
	TypeValidatorsElected          = "pot.validators_elected"
	TypeValidatorsNotChanged       = "pot.validators_not_changed"
	TypeEmptyPotValidatorPool      = "pot.empty_pot_validator_pool"
	TypeVoteLedgerReset            = "pot.vote_ledger_reset"
)

// VotePointsAdded records weight credited to a candidate under a token.
type VotePointsAdded struct {
	Token     types.SystemTokenID
	Candidate types.AccountID
	Points    types.VoteWeight
	Total     types.VoteWeight
}

// EventType implements the Event interface.
func (VotePointsAdded) EventType() string { return TypeVotePointsAdded }

// Event converts the struct into a types.Event payload.
func (e VotePointsAdded) Event() *types.Event {
	return &types.Event{Type: TypeVotePointsAdded, Attributes: map[string]string{
		"token":     e.Token.String(),
		"candidate": e.Candidate.String(),
		"points":    e.Points.String(),
		"total":     e.Total.String(),
	}}
}

// SeedTrustNumChanged records an update of the seed trust slot count.
type SeedTrustNumChanged struct {
	Old uint32
	New uint32
}

// EventType implements the Event interface.
func (SeedTrustNumChanged) EventType() string { return TypeSeedTrustNumChanged }

// Event converts the struct into a types.Event payload.
func (e SeedTrustNumChanged) Event() *types.Event {
	return &types.Event{Type: TypeSeedTrustNumChanged, Attributes: oldNew(uint64(e.Old), uint64(e.New))}
}

// TotalValidatorsChanged records an update of the validator set size.
type TotalValidatorsChanged struct {
	Old uint32
	New uint32
}

// EventType implements the Event interface.
func (TotalValidatorsChanged) EventType() string { return TypeTotalValidatorsChanged }

// Event converts the struct into a types.Event payload.
func (e TotalValidatorsChanged) Event() *types.Event {
	return &types.Event{Type: TypeTotalValidatorsChanged, Attributes: oldNew(uint64(e.Old), uint64(e.New))}
}

// SeedTrustAdded records an account appended to the seed trust pool.
type SeedTrustAdded struct {
	Who types.AccountID
}

// EventType implements the Event interface.
func (SeedTrustAdded) EventType() string { return TypeSeedTrustAdded }

// Event converts the struct into a types.Event payload.
func (e SeedTrustAdded) Event() *types.Event {
	return &types.Event{Type: TypeSeedTrustAdded, Attributes: map[string]string{"who": e.Who.String()}}
}

// MinVotePointsChanged records an update of the PoT eligibility threshold.
type MinVotePointsChanged struct {
	Old types.VoteWeight
	New types.VoteWeight
}

// EventType implements the Event interface.
func (MinVotePointsChanged) EventType() string { return TypeMinVotePointsChanged }

// Event converts the struct into a types.Event payload.
func (e MinVotePointsChanged) Event() *types.Event {
	return &types.Event{Type: TypeMinVotePointsChanged, Attributes: map[string]string{
		"old": e.Old.String(),
		"new": e.New.String(),
	}}
}

// SeedTrustValidatorsElected lists the seed trust slice of an election.
type SeedTrustValidatorsElected struct {
	Era        uint32
	Validators []types.AccountID
}

// EventType implements the Event interface.
func (SeedTrustValidatorsElected) EventType() string { return TypeSeedTrustValidatorsElected }

// Event converts the struct into a types.Event payload.
func (e SeedTrustValidatorsElected) Event() *types.Event {
	return &types.Event{Type: TypeSeedTrustValidatorsElected, Attributes: validatorAttrs(e.Era, e.Validators)}
}

// PotValidatorsElected lists the validators chosen by accumulated votes.
type PotValidatorsElected struct {
	Era        uint32
	Validators []types.AccountID
}

// EventType implements the Event interface.
func (PotValidatorsElected) EventType() string { return TypePotValidatorsElected }

// Event converts the struct into a types.Event payload.
func (e PotValidatorsElected) Event() *types.Event {
	return &types.Event{Type: TypePotValidatorsElected, Attributes: validatorAttrs(e.Era, e.Validators)}
}

// ValidatorsElected carries the full elected set of an era.
type ValidatorsElected struct {
	Era        uint32
	Validators []types.AccountID
	PotEnabled bool
}

// EventType implements the Event interface.
func (ValidatorsElected) EventType() string { return TypeValidatorsElected }

// Event converts the struct into a types.Event payload.
func (e ValidatorsElected) Event() *types.Event {
	attrs := validatorAttrs(e.Era, e.Validators)
	attrs["pot_enabled"] = strconv.FormatBool(e.PotEnabled)
	return &types.Event{Type: TypeValidatorsElected, Attributes: attrs}
}

// ValidatorsNotChanged signals that an election reproduced the previous set.
type ValidatorsNotChanged struct {
	Era uint32
}

// EventType implements the Event interface.
func (ValidatorsNotChanged) EventType() string { return TypeValidatorsNotChanged }

// Event converts the struct into a types.Event payload.
func (e ValidatorsNotChanged) Event() *types.Event {
	return &types.Event{Type: TypeValidatorsNotChanged, Attributes: map[string]string{"era": formatEra(e.Era)}}
}

// EmptyPotValidatorPool signals that the PoT phase found no candidates.
type EmptyPotValidatorPool struct {
	Era uint32
}

// EventType implements the Event interface.
func (EmptyPotValidatorPool) EventType() string { return TypeEmptyPotValidatorPool }

// Event converts the struct into a types.Event payload.
func (e EmptyPotValidatorPool) Event() *types.Event {
	return &types.Event{Type: TypeEmptyPotValidatorPool, Attributes: map[string]string{"era": formatEra(e.Era)}}
}

// VoteLedgerReset records that the ledger was cleared at an era boundary.
type VoteLedgerReset struct {
	Era     uint32
	Entries int
}

// EventType implements the Event interface.
func (VoteLedgerReset) EventType() string { return TypeVoteLedgerReset }

// Event converts the struct into a types.Event payload.
func (e VoteLedgerReset) Event() *types.Event {
	return &types.Event{Type: TypeVoteLedgerReset, Attributes: map[string]string{
		"era":     formatEra(e.Era),
		"entries": strconv.Itoa(e.Entries),
	}}
}

func validatorAttrs(era uint32, validators []types.AccountID) map[string]string {
	return map[string]string{
		"era":        formatEra(era),
		"count":      strconv.Itoa(len(validators)),
		"validators": types.JoinAccounts(validators),
	}
}

func oldNew(old, updated uint64) map[string]string {
	return map[string]string{
		"old": strconv.FormatUint(old, 10),
		"new": strconv.FormatUint(updated, 10),
	}
}

func formatEra(era uint32) string {
	return strconv.FormatUint(uint64(era), 10)
}
