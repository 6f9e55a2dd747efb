package fees

import (
	"fmt"
	"strings"
	"sync"

	"lukechampine.com/blake3"
)

// CallCommitment names a dispatchable call by module and function.
type CallCommitment struct {
	Module   string `json:"module"`
	Function string `json:"function"`
}

// IsZero reports whether the commitment names no call.
func (c CallCommitment) IsZero() bool {
	return normalizeName(c.Module) == "" && normalizeName(c.Function) == ""
}

func (c CallCommitment) String() string {
	return normalizeName(c.Module) + "::" + normalizeName(c.Function)
}

// Hash commits to the normalised call name. Lookups are case-insensitive.
func (c CallCommitment) Hash() [32]byte {
	return blake3.Sum256([]byte(c.String()))
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// TableEntry configures the base fee of one call.
type TableEntry struct {
	Module   string `toml:"Module" json:"module" yaml:"module"`
	Function string `toml:"Function" json:"function" yaml:"function"`
	Fee      uint64 `toml:"Fee" json:"fee" yaml:"fee"`
}

// Table maps call commitments to base fees.
type Table struct {
	mu         sync.RWMutex
	defaultFee uint64
	fees       map[[32]byte]uint64
}

// NewTable builds a fee table. Calls without an entry are charged defaultFee.
func NewTable(defaultFee uint64, entries []TableEntry) (*Table, error) {
	t := &Table{defaultFee: defaultFee, fees: make(map[[32]byte]uint64, len(entries))}
	for _, entry := range entries {
		call := CallCommitment{Module: entry.Module, Function: entry.Function}
		if normalizeName(call.Module) == "" || normalizeName(call.Function) == "" {
			return nil, fmt.Errorf("fees: table entry requires module and function, got %q", call.String())
		}
		hash := call.Hash()
		if _, dup := t.fees[hash]; dup {
			return nil, fmt.Errorf("fees: duplicate table entry %s", call)
		}
		t.fees[hash] = entry.Fee
	}
	return t, nil
}

// Set assigns the fee of call.
func (t *Table) Set(call CallCommitment, fee uint64) {
	t.mu.Lock()
	t.fees[call.Hash()] = fee
	t.mu.Unlock()
}

// Lookup returns the configured fee of call.
func (t *Table) Lookup(call CallCommitment) (uint64, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	fee, ok := t.fees[call.Hash()]
	return fee, ok
}

// Estimate returns the fee of call, falling back to the default fee. A zero
// commitment costs nothing.
func (t *Table) Estimate(call CallCommitment) uint64 {
	if t == nil || call.IsZero() {
		return 0
	}
	if fee, ok := t.Lookup(call); ok {
		return fee
	}
	return t.defaultFee
}
