package fees

import (
	"errors"
	"testing"

	"potchain/core/types"
	"potchain/storage"
)

func TestTableLookupIsCaseInsensitive(t *testing.T) {
	table, err := NewTable(7, []TableEntry{{Module: "Balances", Function: "Transfer", Fee: 25}})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if fee, ok := table.Lookup(CallCommitment{Module: " balances", Function: "TRANSFER "}); !ok || fee != 25 {
		t.Fatalf("lookup: got %d ok=%v", fee, ok)
	}
	if fee := table.Estimate(CallCommitment{Module: "staking", Function: "bond"}); fee != 7 {
		t.Fatalf("default fee: got %d", fee)
	}
	if fee := table.Estimate(CallCommitment{}); fee != 0 {
		t.Fatalf("zero commitment should be free, got %d", fee)
	}
	table.Set(CallCommitment{Module: "staking", Function: "bond"}, 11)
	if fee := table.Estimate(CallCommitment{Module: "Staking", Function: "Bond"}); fee != 11 {
		t.Fatalf("set fee: got %d", fee)
	}
}

func TestTableRejectsBadEntries(t *testing.T) {
	if _, err := NewTable(0, []TableEntry{{Module: "balances"}}); err == nil {
		t.Fatalf("expected error for missing function")
	}
	dup := []TableEntry{
		{Module: "balances", Function: "transfer", Fee: 1},
		{Module: "BALANCES", Function: "transfer", Fee: 2},
	}
	if _, err := NewTable(0, dup); err == nil {
		t.Fatalf("expected duplicate entry error")
	}
}

func TestBalanceChargerSettlement(t *testing.T) {
	collector := types.AccountID{0xc0}
	payer := types.AccountID{0x01}
	token := types.NewSystemTokenID(1000, 50, 1984)
	charger := NewBalanceCharger(storage.NewKV(storage.NewMemDB(), "fees/"), collector)

	if err := charger.Credit(payer, &token, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := charger.Withdraw(payer, &token, 150); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := charger.Withdraw(payer, &token, 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	refund, err := charger.CorrectAndDeposit(payer, &token, 40, 15)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if refund != 25 {
		t.Fatalf("refund: got %d", refund)
	}
	if got, _ := charger.Balance(payer, &token); got != 85 {
		t.Fatalf("payer balance: got %d", got)
	}
	if got, _ := charger.Balance(collector, &token); got != 15 {
		t.Fatalf("collector balance: got %d", got)
	}
	// Native balances are kept apart from token balances.
	if got, _ := charger.Balance(payer, nil); got != 0 {
		t.Fatalf("native balance: got %d", got)
	}
}

func TestBalanceChargerClampsOvercharge(t *testing.T) {
	collector := types.AccountID{0xc0}
	payer := types.AccountID{0x02}
	charger := NewBalanceCharger(storage.NewKV(storage.NewMemDB(), ""), collector)
	if err := charger.Credit(payer, nil, 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := charger.Withdraw(payer, nil, 10); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	refund, err := charger.CorrectAndDeposit(payer, nil, 10, 50)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if refund != 0 {
		t.Fatalf("refund: got %d", refund)
	}
	if got, _ := charger.Balance(collector, nil); got != 10 {
		t.Fatalf("collector balance: got %d", got)
	}
}
