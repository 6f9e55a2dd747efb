package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SystemTokenID identifies a fungible asset as it is used on a specific chain
// and pallet. The relay chain is ParaID zero.
type SystemTokenID struct {
	ParaID   uint32 `json:"paraId" yaml:"para_id" toml:"ParaID"`
	PalletID uint32 `json:"palletId" yaml:"pallet_id" toml:"PalletID"`
	AssetID  uint32 `json:"assetId" yaml:"asset_id" toml:"AssetID"`
}

// NewSystemTokenID constructs a token identifier.
func NewSystemTokenID(paraID, palletID, assetID uint32) SystemTokenID {
	return SystemTokenID{ParaID: paraID, PalletID: palletID, AssetID: assetID}
}

// Compare orders identifiers by (ParaID, PalletID, AssetID).
func (t SystemTokenID) Compare(other SystemTokenID) int {
	switch {
	case t.ParaID != other.ParaID:
		return cmpUint32(t.ParaID, other.ParaID)
	case t.PalletID != other.PalletID:
		return cmpUint32(t.PalletID, other.PalletID)
	default:
		return cmpUint32(t.AssetID, other.AssetID)
	}
}

// Bytes returns a fixed-width big-endian encoding usable as a storage key.
// The encoding preserves Compare ordering.
func (t SystemTokenID) Bytes() []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], t.ParaID)
	binary.BigEndian.PutUint32(out[4:8], t.PalletID)
	binary.BigEndian.PutUint32(out[8:12], t.AssetID)
	return out
}

// String renders the identifier as para/pallet/asset.
func (t SystemTokenID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.ParaID, t.PalletID, t.AssetID)
}

// ParseSystemTokenID parses the para/pallet/asset form produced by String.
func ParseSystemTokenID(value string) (SystemTokenID, error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 3 {
		return SystemTokenID{}, fmt.Errorf("system token: expected para/pallet/asset, got %q", value)
	}
	var fields [3]uint32
	for i, part := range parts {
		parsed, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return SystemTokenID{}, fmt.Errorf("system token: invalid component %q: %w", part, err)
		}
		fields[i] = uint32(parsed)
	}
	return NewSystemTokenID(fields[0], fields[1], fields[2]), nil
}

// LocalLink names a system token as it is known on one chain.
type LocalLink struct {
	ParaID       uint32 `json:"paraId" yaml:"para_id"`
	LocalAssetID uint32 `json:"localAssetId" yaml:"local_asset_id"`
}

// String renders the link as para:asset.
func (l LocalLink) String() string {
	return fmt.Sprintf("%d:%d", l.ParaID, l.LocalAssetID)
}

// Bytes returns a fixed-width big-endian encoding usable as a storage key.
func (l LocalLink) Bytes() []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[0:4], l.ParaID)
	binary.BigEndian.PutUint32(out[4:8], l.LocalAssetID)
	return out
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
