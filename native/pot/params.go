package pot

import (
	"errors"
	"fmt"

	"potchain/core/types"
)

// DefaultMaxVoteNum bounds the number of distinct (token, candidate) entries
// the ledger accepts.
const DefaultMaxVoteNum uint32 = 16 * 1024

var ErrSeedTrustExceedsTotal = errors.New("pot: seed trust validators exceed total validators")

// Params controls how many validators an election produces and which vote
// weight qualifies a candidate for the PoT slice.
type Params struct {
	TotalValidators     uint32
	SeedTrustValidators uint32
	MinVoteThreshold    types.VoteWeight
}

// DefaultParams returns a small hybrid configuration suitable for devnets.
func DefaultParams() Params {
	return Params{
		TotalValidators:     4,
		SeedTrustValidators: 2,
		MinVoteThreshold:    types.NewVoteWeight(0),
	}
}

// Validate ensures the seed trust slice fits within the validator set.
func (p Params) Validate() error {
	if p.SeedTrustValidators > p.TotalValidators {
		return fmt.Errorf("%w: %d > %d", ErrSeedTrustExceedsTotal, p.SeedTrustValidators, p.TotalValidators)
	}
	return nil
}

// PotSlots is the number of validators elected by accumulated votes.
func (p Params) PotSlots() uint32 {
	if p.SeedTrustValidators >= p.TotalValidators {
		return 0
	}
	return p.TotalValidators - p.SeedTrustValidators
}
