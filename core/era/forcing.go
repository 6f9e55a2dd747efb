package era

import (
	"fmt"
	"strings"
)

// Forcing overrides the session count schedule that normally decides when a
// new era starts.
type Forcing uint8

const (
	// NotForcing starts a new era once SessionsPerEra sessions have passed.
	NotForcing Forcing = iota
	// ForceNew starts a new era at the next session boundary, then reverts
	// to NotForcing.
	ForceNew
	// ForceNone never starts a new era.
	ForceNone
	// ForceAlways starts a new era at every session boundary.
	ForceAlways
)

var forcingNames = map[Forcing]string{
	NotForcing:  "not_forcing",
	ForceNew:    "force_new",
	ForceNone:   "force_none",
	ForceAlways: "force_always",
}

// Valid reports whether f names a known mode.
func (f Forcing) Valid() bool {
	_, ok := forcingNames[f]
	return ok
}

func (f Forcing) String() string {
	if name, ok := forcingNames[f]; ok {
		return name
	}
	return fmt.Sprintf("forcing(%d)", uint8(f))
}

// ParseForcing accepts the snake_case names produced by String. CamelCase
// spellings such as "ForceNew" are accepted too.
func ParseForcing(value string) (Forcing, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), "_", ""))
	for mode, name := range forcingNames {
		if strings.ReplaceAll(name, "_", "") == normalized {
			return mode, nil
		}
	}
	return NotForcing, fmt.Errorf("era: unknown forcing mode %q", value)
}

// MarshalText implements encoding.TextMarshaler.
func (f Forcing) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("era: unknown forcing mode %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Forcing) UnmarshalText(text []byte) error {
	parsed, err := ParseForcing(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
