package fees

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"potchain/core/events"
	"potchain/core/types"
	"potchain/native/pot"
	"potchain/observability/metrics"
)

var (
	ErrPaymentFailure  = errors.New("fees: payment failure")
	ErrInvalidFeeAsset = errors.New("fees: fee asset not registered")
	ErrTicketConsumed  = errors.New("fees: payment ticket already settled")
)

type assetRegistry interface {
	IsRegistered(id types.SystemTokenID) (bool, error)
	AdjustWeight(id types.SystemTokenID, raw types.VoteWeight) (types.VoteWeight, error)
}

type voteLedger interface {
	Accumulate(token types.SystemTokenID, candidate types.AccountID, delta types.VoteWeight) error
}

// Policy controls how the bridge treats declared fee assets.
type Policy struct {
	// StrictTokenPolicy rejects payments that declare an unregistered system
	// token. When false such payments are charged in the native currency and
	// carry no vote.
	StrictTokenPolicy bool
}

// BeginRequest describes the fee obligation of a call about to be dispatched.
type BeginRequest struct {
	Payer     types.AccountID
	Call      CallCommitment
	Candidate *types.AccountID
	Token     *types.SystemTokenID
	Tip       uint64
	// EstimatedFee overrides the fee table when non-zero.
	EstimatedFee uint64
}

// PaymentTicket carries the pre-dispatch withdrawal into End.
type PaymentTicket struct {
	ID        string
	Payer     types.AccountID
	Call      CallCommitment
	Candidate *types.AccountID
	Token     *types.SystemTokenID
	Fee       uint64
	Tip       uint64
	Withdrawn uint64
}

// FeeReceipt summarises a settled payment.
type FeeReceipt struct {
	Ticket    string               `json:"ticket"`
	Payer     types.AccountID      `json:"payer"`
	Token     *types.SystemTokenID `json:"token,omitempty"`
	Withdrawn uint64               `json:"withdrawn"`
	Charged   uint64               `json:"charged"`
	Refund    uint64               `json:"refund"`
	Tip       uint64               `json:"tip"`
	Vote      *events.FeeVote      `json:"vote,omitempty"`
}

// Bridge converts settled fee payments into vote weight.
type Bridge struct {
	mu        sync.Mutex
	registry  assetRegistry
	ledger    voteLedger
	charger   Charger
	table     *Table
	policy    Policy
	pending   map[string]*PaymentTicket
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.PotMetrics
}

// NewBridge wires the bridge to its collaborators.
func NewBridge(registry assetRegistry, ledger voteLedger, charger Charger, table *Table, policy Policy) (*Bridge, error) {
	if registry == nil || ledger == nil {
		return nil, errors.New("fees: registry and ledger required")
	}
	if charger == nil {
		return nil, errors.New("fees: charger required")
	}
	return &Bridge{
		registry:  registry,
		ledger:    ledger,
		charger:   charger,
		table:     table,
		policy:    policy,
		pending:   make(map[string]*PaymentTicket),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default().With("component", "fees"),
		telemetry: metrics.Pot(),
	}, nil
}

// SetEmitter configures the event emitter used for payment events.
func (b *Bridge) SetEmitter(emitter events.Emitter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	b.emitter = emitter
}

// SetLogger replaces the component logger.
func (b *Bridge) SetLogger(logger *slog.Logger) {
	if b == nil || logger == nil {
		return
	}
	b.mu.Lock()
	b.logger = logger.With("component", "fees")
	b.mu.Unlock()
}

// Begin withdraws the estimated fee plus tip from the payer and returns the
// ticket End needs to settle the payment. A rejected request takes nothing.
func (b *Bridge) Begin(req BeginRequest) (*PaymentTicket, error) {
	if b == nil {
		return nil, errors.New("fees: bridge not initialised")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Payer.IsZero() {
		return nil, fmt.Errorf("%w: payer required", ErrPaymentFailure)
	}
	token := req.Token
	if token != nil {
		registered, err := b.registry.IsRegistered(*token)
		if err != nil {
			return nil, err
		}
		if !registered {
			if b.policy.StrictTokenPolicy {
				b.telemetry.ObserveFeePayment("rejected")
				return nil, fmt.Errorf("%w: %s", ErrInvalidFeeAsset, token)
			}
			b.logger.Debug("unregistered fee asset, charging native", "token", token.String(), "payer", req.Payer.String())
			token = nil
		}
	}

	fee := req.EstimatedFee
	if fee == 0 {
		fee = b.table.Estimate(req.Call)
	}
	amount := fee + req.Tip
	if amount < fee {
		return nil, fmt.Errorf("%w: fee overflow", ErrPaymentFailure)
	}
	if amount > 0 {
		if err := b.charger.Withdraw(req.Payer, token, amount); err != nil {
			b.telemetry.ObserveFeePayment("rejected")
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailure, err)
		}
	}

	ticket := &PaymentTicket{
		ID:        uuid.NewString(),
		Payer:     req.Payer,
		Call:      req.Call,
		Candidate: copyAccount(req.Candidate),
		Token:     copyToken(token),
		Fee:       fee,
		Tip:       req.Tip,
		Withdrawn: amount,
	}
	b.pending[ticket.ID] = ticket
	out := *ticket
	return &out, nil
}

// End settles a ticket against the actual fee. The actual fee is capped at
// the estimate; a zero actual fee refunds the whole estimate. When the
// ticket names both a candidate and a token the charged fee, scaled by the
// token's exchange rate, is credited to the candidate. A full vote ledger
// drops the vote but not the payment.
func (b *Bridge) End(ticket *PaymentTicket, actual uint64) (FeeReceipt, error) {
	if b == nil {
		return FeeReceipt{}, errors.New("fees: bridge not initialised")
	}
	if ticket == nil {
		return FeeReceipt{}, errors.New("fees: ticket required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, ok := b.pending[ticket.ID]
	if !ok {
		return FeeReceipt{}, fmt.Errorf("%w: %s", ErrTicketConsumed, ticket.ID)
	}
	charged := actual
	if charged > pending.Fee {
		charged = pending.Fee
	}
	refund, err := b.charger.CorrectAndDeposit(pending.Payer, pending.Token, pending.Withdrawn, charged+pending.Tip)
	if err != nil {
		b.telemetry.ObserveFeePayment("failed")
		return FeeReceipt{}, fmt.Errorf("%w: settle %s: %v", ErrPaymentFailure, pending.ID, err)
	}
	delete(b.pending, pending.ID)

	receipt := FeeReceipt{
		Ticket:    pending.ID,
		Payer:     pending.Payer,
		Token:     copyToken(pending.Token),
		Withdrawn: pending.Withdrawn,
		Charged:   charged,
		Refund:    refund,
		Tip:       pending.Tip,
	}
	if pending.Candidate != nil && pending.Token != nil && charged > 0 {
		receipt.Vote = b.vote(*pending.Token, *pending.Candidate, charged)
	}
	b.telemetry.ObserveFeePayment("settled")
	b.emitter.Emit(events.FeePaid{
		Ticket:    receipt.Ticket,
		Payer:     receipt.Payer,
		Token:     receipt.Token,
		Withdrawn: receipt.Withdrawn,
		Actual:    receipt.Charged,
		Refund:    receipt.Refund,
		Tip:       receipt.Tip,
		Vote:      receipt.Vote,
	})
	return receipt, nil
}

// Cancel abandons a ticket that cannot be settled and refunds everything it
// withdrew, tip included. No vote is cast.
func (b *Bridge) Cancel(ticket *PaymentTicket) (uint64, error) {
	if b == nil {
		return 0, errors.New("fees: bridge not initialised")
	}
	if ticket == nil {
		return 0, errors.New("fees: ticket required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, ok := b.pending[ticket.ID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTicketConsumed, ticket.ID)
	}
	refund, err := b.charger.CorrectAndDeposit(pending.Payer, pending.Token, pending.Withdrawn, 0)
	if err != nil {
		b.telemetry.ObserveFeePayment("failed")
		return 0, fmt.Errorf("%w: cancel %s: %v", ErrPaymentFailure, pending.ID, err)
	}
	delete(b.pending, pending.ID)
	b.telemetry.ObserveFeePayment("cancelled")
	b.logger.Info("payment cancelled", "ticket", pending.ID, "payer", pending.Payer.String(), "refund", refund)
	return refund, nil
}

func (b *Bridge) vote(token types.SystemTokenID, candidate types.AccountID, charged uint64) *events.FeeVote {
	weight, err := b.registry.AdjustWeight(token, types.NewVoteWeight(charged))
	if err != nil {
		b.logger.Warn("adjust vote weight", "token", token.String(), "error", err)
		return nil
	}
	if err := b.ledger.Accumulate(token, candidate, weight); err != nil {
		if errors.Is(err, pot.ErrStaleVote) {
			b.logger.Debug("vote dropped, ledger full", "candidate", candidate.String())
		} else {
			b.logger.Warn("record vote", "candidate", candidate.String(), "error", err)
		}
		return nil
	}
	return &events.FeeVote{Candidate: candidate, Weight: weight}
}

// Pending reports how many tickets await settlement.
func (b *Bridge) Pending() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func copyAccount(in *types.AccountID) *types.AccountID {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func copyToken(in *types.SystemTokenID) *types.SystemTokenID {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}
