package fees

import (
	"errors"
	"testing"

	"potchain/core/events"
	"potchain/core/types"
	"potchain/native/pot"
	"potchain/native/systoken"
	"potchain/storage"
)

var (
	payer     = types.AccountID{0x01}
	candidate = types.AccountID{0xC0}
	collector = types.AccountID{0xFE}
)

type bridgeFixture struct {
	bridge   *Bridge
	registry *systoken.Registry
	ledger   *pot.Ledger
	charger  *BalanceCharger
	recorder *events.Recorder
}

func newBridgeFixture(t *testing.T, policy Policy, maxVotes uint32) *bridgeFixture {
	t.Helper()
	kv := storage.NewKV(storage.NewMemDB(), "")
	registry := systoken.NewRegistry(kv, systoken.DefaultLimits())
	ledger, err := pot.NewLedger(kv, maxVotes)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	charger := NewBalanceCharger(kv, collector)
	table, err := NewTable(5, []TableEntry{{Module: "Balances", Function: "transfer", Fee: 12}})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	bridge, err := NewBridge(registry, ledger, charger, table, policy)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	rec := &events.Recorder{}
	bridge.SetEmitter(rec)
	return &bridgeFixture{bridge: bridge, registry: registry, ledger: ledger, charger: charger, recorder: rec}
}

func (f *bridgeFixture) register(t *testing.T, token types.SystemTokenID, rate uint64) {
	t.Helper()
	if err := f.registry.Register(token, nil, rate, systoken.Metadata{}); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func (f *bridgeFixture) fund(t *testing.T, token *types.SystemTokenID, amount uint64) {
	t.Helper()
	if err := f.charger.Credit(payer, token, amount); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (f *bridgeFixture) balance(t *testing.T, who types.AccountID, token *types.SystemTokenID) uint64 {
	t.Helper()
	amount, err := f.charger.Balance(who, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return amount
}

func TestFeePaymentCreditsScaledVote(t *testing.T) {
	f := newBridgeFixture(t, Policy{StrictTokenPolicy: true}, pot.DefaultMaxVoteNum)
	token := types.NewSystemTokenID(1000, 1, 5)
	f.register(t, token, 3)
	f.fund(t, &token, 100)

	who := candidate
	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, Candidate: &who, Token: &token, EstimatedFee: 15, Tip: 2})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if ticket.Withdrawn != 17 || f.balance(t, payer, &token) != 83 {
		t.Fatalf("unexpected withdrawal %d, balance %d", ticket.Withdrawn, f.balance(t, payer, &token))
	}

	receipt, err := f.bridge.End(ticket, 10)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if receipt.Charged != 10 || receipt.Refund != 5 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if f.balance(t, payer, &token) != 88 || f.balance(t, collector, &token) != 12 {
		t.Fatalf("unexpected balances payer=%d collector=%d", f.balance(t, payer, &token), f.balance(t, collector, &token))
	}
	weight, ok := f.ledger.Weight(token, candidate)
	if !ok || weight.Cmp(types.NewVoteWeight(30)) != 0 {
		t.Fatalf("expected ledger weight 30, got %s", weight)
	}
	if receipt.Vote == nil || receipt.Vote.Weight.Cmp(types.NewVoteWeight(30)) != 0 {
		t.Fatalf("expected vote detail on receipt")
	}
	evt := f.recorder.Events()[0].(events.FeePaid)
	if evt.Vote == nil || evt.Tip != 2 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestBeginRejectsUnregisteredTokenUnderStrictPolicy(t *testing.T) {
	f := newBridgeFixture(t, Policy{StrictTokenPolicy: true}, pot.DefaultMaxVoteNum)
	token := types.NewSystemTokenID(9, 9, 9)
	f.fund(t, &token, 100)
	if _, err := f.bridge.Begin(BeginRequest{Payer: payer, Token: &token, EstimatedFee: 10}); !errors.Is(err, ErrInvalidFeeAsset) {
		t.Fatalf("expected ErrInvalidFeeAsset, got %v", err)
	}
	if f.balance(t, payer, &token) != 100 {
		t.Fatalf("rejected payment withdrew funds")
	}
}

func TestBeginFallsBackToNativeWhenPermissive(t *testing.T) {
	f := newBridgeFixture(t, Policy{}, pot.DefaultMaxVoteNum)
	token := types.NewSystemTokenID(9, 9, 9)
	f.fund(t, nil, 50)
	who := candidate
	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, Candidate: &who, Token: &token, EstimatedFee: 10})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if ticket.Token != nil {
		t.Fatalf("expected native charge")
	}
	receipt, err := f.bridge.End(ticket, 10)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if receipt.Vote != nil || f.ledger.Count() != 0 {
		t.Fatalf("native payment must not vote")
	}
	if f.balance(t, payer, nil) != 40 {
		t.Fatalf("unexpected native balance %d", f.balance(t, payer, nil))
	}
}

func TestBeginInsufficientFunds(t *testing.T) {
	f := newBridgeFixture(t, Policy{StrictTokenPolicy: true}, pot.DefaultMaxVoteNum)
	f.fund(t, nil, 3)
	_, err := f.bridge.Begin(BeginRequest{Payer: payer, EstimatedFee: 10})
	if !errors.Is(err, ErrPaymentFailure) {
		t.Fatalf("expected ErrPaymentFailure, got %v", err)
	}
	if f.balance(t, payer, nil) != 3 || f.bridge.Pending() != 0 {
		t.Fatalf("failed payment changed state")
	}
}

func TestEndSwallowsStaleVote(t *testing.T) {
	f := newBridgeFixture(t, Policy{StrictTokenPolicy: true}, 1)
	token := types.NewSystemTokenID(1, 1, 1)
	f.register(t, token, 1)
	f.fund(t, &token, 100)
	if err := f.ledger.Accumulate(token, types.AccountID{0xAA}, types.NewVoteWeight(1)); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	who := candidate
	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, Candidate: &who, Token: &token, EstimatedFee: 10})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	receipt, err := f.bridge.End(ticket, 10)
	if err != nil {
		t.Fatalf("end must succeed despite full ledger: %v", err)
	}
	if receipt.Vote != nil {
		t.Fatalf("expected no vote detail")
	}
	if f.ledger.Count() != 1 {
		t.Fatalf("stale vote changed the ledger")
	}
	evts := f.recorder.Events()
	if len(evts) != 1 || evts[0].(events.FeePaid).Vote != nil {
		t.Fatalf("expected a payment event without vote, got %v", f.recorder.Types())
	}
}

func TestEndClampsActualFee(t *testing.T) {
	f := newBridgeFixture(t, Policy{}, pot.DefaultMaxVoteNum)
	f.fund(t, nil, 100)

	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, EstimatedFee: 10})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	receipt, err := f.bridge.End(ticket, 50)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if receipt.Charged != 10 || receipt.Refund != 0 {
		t.Fatalf("overcharge not clamped: %+v", receipt)
	}

	ticket, err = f.bridge.Begin(BeginRequest{Payer: payer, EstimatedFee: 10})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	receipt, err = f.bridge.End(ticket, 0)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if receipt.Charged != 0 || receipt.Refund != 10 {
		t.Fatalf("waived fee should be refunded in full: %+v", receipt)
	}
}

func TestWaivedFeeCastsNoVote(t *testing.T) {
	f := newBridgeFixture(t, Policy{StrictTokenPolicy: true}, pot.DefaultMaxVoteNum)
	token := types.NewSystemTokenID(1000, 1, 5)
	f.register(t, token, 3)
	f.fund(t, &token, 100)

	who := candidate
	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, Candidate: &who, Token: &token, EstimatedFee: 10})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	receipt, err := f.bridge.End(ticket, 0)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if receipt.Charged != 0 || receipt.Refund != 10 || receipt.Vote != nil {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.balance(t, payer, &token); got != 100 {
		t.Fatalf("payer balance: got %d", got)
	}
	if _, ok := f.ledger.Weight(token, candidate); ok {
		t.Fatalf("waived fee must not record a vote")
	}
}

func TestCancelRefundsWithdrawal(t *testing.T) {
	f := newBridgeFixture(t, Policy{}, pot.DefaultMaxVoteNum)
	f.fund(t, nil, 50)

	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, EstimatedFee: 20, Tip: 5})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got := f.balance(t, payer, nil); got != 25 {
		t.Fatalf("balance after withdraw: got %d", got)
	}
	refund, err := f.bridge.Cancel(ticket)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund != 25 || f.bridge.Pending() != 0 {
		t.Fatalf("refund %d pending %d", refund, f.bridge.Pending())
	}
	if got := f.balance(t, payer, nil); got != 50 {
		t.Fatalf("balance after cancel: got %d", got)
	}
	if got := f.balance(t, collector, nil); got != 0 {
		t.Fatalf("collector should receive nothing, got %d", got)
	}
	if _, err := f.bridge.End(ticket, 20); !errors.Is(err, ErrTicketConsumed) {
		t.Fatalf("expected ErrTicketConsumed after cancel, got %v", err)
	}
	if _, err := f.bridge.Cancel(ticket); !errors.Is(err, ErrTicketConsumed) {
		t.Fatalf("expected ErrTicketConsumed on second cancel, got %v", err)
	}
}

func TestTicketSettlesOnce(t *testing.T) {
	f := newBridgeFixture(t, Policy{}, pot.DefaultMaxVoteNum)
	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer})
	if err != nil {
		t.Fatalf("begin zero fee: %v", err)
	}
	if ticket.Withdrawn != 0 {
		t.Fatalf("zero fee withdrew %d", ticket.Withdrawn)
	}
	if _, err := f.bridge.End(ticket, 0); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := f.bridge.End(ticket, 0); !errors.Is(err, ErrTicketConsumed) {
		t.Fatalf("expected ErrTicketConsumed, got %v", err)
	}
}

func TestBeginUsesFeeTable(t *testing.T) {
	f := newBridgeFixture(t, Policy{}, pot.DefaultMaxVoteNum)
	f.fund(t, nil, 100)

	ticket, err := f.bridge.Begin(BeginRequest{Payer: payer, Call: CallCommitment{Module: "balances", Function: "Transfer"}})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if ticket.Fee != 12 {
		t.Fatalf("expected table fee 12, got %d", ticket.Fee)
	}
	ticket, err = f.bridge.Begin(BeginRequest{Payer: payer, Call: CallCommitment{Module: "system", Function: "remark"}})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if ticket.Fee != 5 {
		t.Fatalf("expected default fee 5, got %d", ticket.Fee)
	}
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable(0, []TableEntry{
		{Module: "a", Function: "b", Fee: 1},
		{Module: " A", Function: "B ", Fee: 2},
	})
	if err == nil {
		t.Fatalf("expected duplicate entry error")
	}
	if _, err := NewTable(0, []TableEntry{{Module: "a"}}); err == nil {
		t.Fatalf("expected missing function error")
	}
}
