package systoken

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultMaxLinksPerToken = 8
	DefaultMaxLinksPerPara  = 64

	maxSymbolLength = 16
	maxNameLength   = 64
)

// Limits bounds the link lists maintained by the registry.
type Limits struct {
	MaxLinksPerToken uint32
	MaxLinksPerPara  uint32
}

// DefaultLimits returns the limits used when the node config leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		MaxLinksPerToken: DefaultMaxLinksPerToken,
		MaxLinksPerPara:  DefaultMaxLinksPerPara,
	}
}

// Validate ensures both limits allow at least one link.
func (l Limits) Validate() error {
	if l.MaxLinksPerToken == 0 {
		return fmt.Errorf("systoken: max links per token must be positive")
	}
	if l.MaxLinksPerPara == 0 {
		return fmt.Errorf("systoken: max links per para must be positive")
	}
	return nil
}

// Metadata is descriptive information kept alongside a system token.
type Metadata struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// normalized trims and NFC-normalises the text fields, then checks their
// encoded lengths.
func (m Metadata) normalized() (Metadata, error) {
	m.Name = norm.NFC.String(strings.TrimSpace(m.Name))
	m.Symbol = norm.NFC.String(strings.TrimSpace(m.Symbol))
	if len(m.Symbol) > maxSymbolLength {
		return Metadata{}, fmt.Errorf("%w: symbol exceeds %d bytes", ErrInvalidMetadata, maxSymbolLength)
	}
	if len(m.Name) > maxNameLength {
		return Metadata{}, fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidMetadata, maxNameLength)
	}
	return m, nil
}
