package types

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// maxVoteWeight is the saturation ceiling for vote weight arithmetic (2^128-1).
var maxVoteWeight = func() uint256.Int {
	var v uint256.Int
	v.Lsh(uint256.NewInt(1), 128)
	v.SubUint64(&v, 1)
	return v
}()

// VoteWeight is an unsigned 128-bit vote weight. All arithmetic clamps at
// MaxVoteWeight instead of wrapping.
type VoteWeight struct {
	v uint256.Int
}

// NewVoteWeight lifts a uint64 into a weight.
func NewVoteWeight(value uint64) VoteWeight {
	var w VoteWeight
	w.v.SetUint64(value)
	return w
}

// MaxVoteWeight returns the largest representable weight.
func MaxVoteWeight() VoteWeight {
	return VoteWeight{v: maxVoteWeight}
}

// VoteWeightFromBig converts a non-negative big integer, saturating values
// above MaxVoteWeight.
func VoteWeightFromBig(value *big.Int) (VoteWeight, error) {
	if value == nil {
		return VoteWeight{}, nil
	}
	if value.Sign() < 0 {
		return VoteWeight{}, fmt.Errorf("vote weight: negative value %s", value)
	}
	converted, overflow := uint256.FromBig(value)
	if overflow {
		return MaxVoteWeight(), nil
	}
	return VoteWeight{v: *converted}.clamp(), nil
}

// ParseVoteWeight parses a base-10 weight.
func ParseVoteWeight(value string) (VoteWeight, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return VoteWeight{}, nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return VoteWeight{}, fmt.Errorf("vote weight: invalid decimal %q", value)
	}
	return VoteWeightFromBig(parsed)
}

func (w VoteWeight) clamp() VoteWeight {
	if w.v.Cmp(&maxVoteWeight) > 0 {
		return MaxVoteWeight()
	}
	return w
}

// SaturatingAdd returns w+other clamped at MaxVoteWeight.
func (w VoteWeight) SaturatingAdd(other VoteWeight) VoteWeight {
	var out VoteWeight
	// Both operands are below 2^128 so the 256-bit sum cannot wrap.
	out.v.Add(&w.v, &other.v)
	return out.clamp()
}

// SaturatingMul returns w*other clamped at MaxVoteWeight.
func (w VoteWeight) SaturatingMul(other VoteWeight) VoteWeight {
	var out VoteWeight
	out.v.Mul(&w.v, &other.v)
	return out.clamp()
}

// SaturatingMulUint64 multiplies by a scalar rate.
func (w VoteWeight) SaturatingMulUint64(rate uint64) VoteWeight {
	return w.SaturatingMul(NewVoteWeight(rate))
}

// Cmp compares two weights.
func (w VoteWeight) Cmp(other VoteWeight) int {
	return w.v.Cmp(&other.v)
}

// IsZero reports whether the weight is zero.
func (w VoteWeight) IsZero() bool {
	return w.v.IsZero()
}

// Big returns the weight as a fresh big integer.
func (w VoteWeight) Big() *big.Int {
	return w.v.ToBig()
}

// Uint64 returns the weight when it fits in 64 bits.
func (w VoteWeight) Uint64() (uint64, bool) {
	if !w.v.IsUint64() {
		return 0, false
	}
	return w.v.Uint64(), true
}

// Float64 approximates the weight for metrics.
func (w VoteWeight) Float64() float64 {
	f, _ := new(big.Float).SetInt(w.Big()).Float64()
	return f
}

// String renders the weight in base 10.
func (w VoteWeight) String() string {
	return w.v.Dec()
}

// MarshalText implements encoding.TextMarshaler.
func (w VoteWeight) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *VoteWeight) UnmarshalText(text []byte) error {
	parsed, err := ParseVoteWeight(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// EncodeRLP implements rlp.Encoder.
func (w VoteWeight) EncodeRLP(out io.Writer) error {
	return rlp.Encode(out, w.Big())
}

// DecodeRLP implements rlp.Decoder.
func (w *VoteWeight) DecodeRLP(s *rlp.Stream) error {
	value, err := s.BigInt()
	if err != nil {
		return err
	}
	decoded, err := VoteWeightFromBig(value)
	if err != nil {
		return err
	}
	*w = decoded
	return nil
}
