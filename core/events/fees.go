package events

import (
	"strconv"

	"potchain/core/types"
)

const (
	// TypeFeePaid marks a dispatched call whose fee was settled.
	TypeFeePaid = "fees.paid"
)

// FeeVote is the vote detail attached to a fee payment when the payer
// declared a candidate and the weight reached the ledger.
type FeeVote struct {
	Candidate types.AccountID
	Weight    types.VoteWeight
}

// FeePaid records the outcome of a settled fee payment.
type FeePaid struct {
	Ticket    string
	Payer     types.AccountID
	Token     *types.SystemTokenID
	Withdrawn uint64
	Actual    uint64
	Refund    uint64
	Tip       uint64
	Vote      *FeeVote
}

// EventType satisfies the events.Event interface.
func (FeePaid) EventType() string { return TypeFeePaid }

// Event converts the structured payload into a broadcastable event.
func (e FeePaid) Event() *types.Event {
	attrs := map[string]string{
		"payer":     e.Payer.String(),
		"withdrawn": strconv.FormatUint(e.Withdrawn, 10),
		"actual":    strconv.FormatUint(e.Actual, 10),
		"refund":    strconv.FormatUint(e.Refund, 10),
		"tip":       strconv.FormatUint(e.Tip, 10),
	}
	if e.Ticket != "" {
		attrs["ticket"] = e.Ticket
	}
	if e.Token != nil {
		attrs["token"] = e.Token.String()
	} else {
		attrs["token"] = "native"
	}
	if e.Vote != nil {
		attrs["candidate"] = e.Vote.Candidate.String()
		attrs["weight"] = e.Vote.Weight.String()
	}
	return &types.Event{Type: TypeFeePaid, Attributes: attrs}
}
