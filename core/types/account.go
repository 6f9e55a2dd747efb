package types

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AccountIDLength is the byte length of a candidate account identifier. It
// matches the account width used by the relay chain the votes are cast for.
const AccountIDLength = 32

// AccountID identifies a validator candidate or a fee payer.
type AccountID [AccountIDLength]byte

// ParseAccountID decodes a 0x-prefixed hex string into an AccountID.
func ParseAccountID(value string) (AccountID, error) {
	var id AccountID
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil {
		return id, fmt.Errorf("account id: %w", err)
	}
	if len(raw) != AccountIDLength {
		return id, fmt.Errorf("account id: expected %d bytes, got %d", AccountIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustAccountID is ParseAccountID for fixtures and genesis constants.
func MustAccountID(value string) AccountID {
	id, err := ParseAccountID(value)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the identifier as 0x-prefixed hex.
func (a AccountID) String() string {
	return hexutil.Encode(a[:])
}

// IsZero reports whether the identifier is unset.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// Compare orders identifiers lexicographically by their bytes.
func (a AccountID) Compare(other AccountID) int {
	return bytes.Compare(a[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CloneAccounts copies a slice of identifiers so callers cannot alias internal
// state.
func CloneAccounts(in []AccountID) []AccountID {
	if len(in) == 0 {
		return []AccountID{}
	}
	out := make([]AccountID, len(in))
	copy(out, in)
	return out
}

// AccountsEqual reports whether two ordered identifier lists are identical.
func AccountsEqual(a, b []AccountID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// JoinAccounts renders identifiers as a comma separated hex list.
func JoinAccounts(ids []AccountID) string {
	encoded := make([]string, len(ids))
	for i := range ids {
		encoded[i] = ids[i].String()
	}
	return strings.Join(encoded, ",")
}
