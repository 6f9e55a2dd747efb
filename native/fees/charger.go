package fees

import (
	"errors"
	"fmt"
	"sync"

	"potchain/core/types"
)

// ErrInsufficientBalance is returned by BalanceCharger when the payer cannot
// cover the withdrawal.
var ErrInsufficientBalance = errors.New("fees: insufficient balance")

// Charger moves fee funds. Token nil means the native currency.
type Charger interface {
	// Withdraw takes amount from payer ahead of dispatch.
	Withdraw(payer types.AccountID, token *types.SystemTokenID, amount uint64) error
	// CorrectAndDeposit settles a withdrawal once the actual charge is known:
	// the difference is refunded to payer and the charge is deposited with the
	// fee collector. It returns the refunded amount.
	CorrectAndDeposit(payer types.AccountID, token *types.SystemTokenID, withdrawn, charged uint64) (uint64, error)
}

type chargerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type balance struct {
	Amount uint64
}

var nativeTag = []byte("native")

func balanceKey(account types.AccountID, token *types.SystemTokenID) []byte {
	key := make([]byte, 0, 64)
	key = append(key, "fees/balance/"...)
	key = append(key, account[:]...)
	key = append(key, '/')
	if token == nil {
		return append(key, nativeTag...)
	}
	return append(key, token.Bytes()...)
}

// BalanceCharger is a KV-backed Charger holding native and system token
// balances. Collected fees accrue to the collector account.
type BalanceCharger struct {
	mu        sync.Mutex
	state     chargerState
	collector types.AccountID
}

// NewBalanceCharger constructs a charger depositing fees with collector.
func NewBalanceCharger(state chargerState, collector types.AccountID) *BalanceCharger {
	return &BalanceCharger{state: state, collector: collector}
}

// Balance returns the balance of account in token.
func (c *BalanceCharger) Balance(account types.AccountID, token *types.SystemTokenID) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errors.New("fees: charger not initialised")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(account, token)
}

// Credit adds amount to the balance of account.
func (c *BalanceCharger) Credit(account types.AccountID, token *types.SystemTokenID, amount uint64) error {
	if c == nil || c.state == nil {
		return errors.New("fees: charger not initialised")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credit(account, token, amount)
}

// Withdraw implements Charger.
func (c *BalanceCharger) Withdraw(payer types.AccountID, token *types.SystemTokenID, amount uint64) error {
	if c == nil || c.state == nil {
		return errors.New("fees: charger not initialised")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.balance(payer, token)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, current, amount)
	}
	return c.state.KVPut(balanceKey(payer, token), balance{Amount: current - amount})
}

// CorrectAndDeposit implements Charger.
func (c *BalanceCharger) CorrectAndDeposit(payer types.AccountID, token *types.SystemTokenID, withdrawn, charged uint64) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, errors.New("fees: charger not initialised")
	}
	if charged > withdrawn {
		charged = withdrawn
	}
	refund := withdrawn - charged
	c.mu.Lock()
	defer c.mu.Unlock()
	if refund > 0 {
		if err := c.credit(payer, token, refund); err != nil {
			return 0, err
		}
	}
	if charged > 0 {
		if err := c.credit(c.collector, token, charged); err != nil {
			return 0, err
		}
	}
	return refund, nil
}

func (c *BalanceCharger) balance(account types.AccountID, token *types.SystemTokenID) (uint64, error) {
	var stored balance
	if _, err := c.state.KVGet(balanceKey(account, token), &stored); err != nil {
		return 0, err
	}
	return stored.Amount, nil
}

func (c *BalanceCharger) credit(account types.AccountID, token *types.SystemTokenID, amount uint64) error {
	current, err := c.balance(account, token)
	if err != nil {
		return err
	}
	if current+amount < current {
		return fmt.Errorf("fees: balance overflow for %s", account)
	}
	return c.state.KVPut(balanceKey(account, token), balance{Amount: current + amount})
}
