package systoken

import (
	"encoding/binary"

	"potchain/core/types"
)

var (
	tokenPrefix = []byte("systoken/token/")
	linkPrefix  = []byte("systoken/link/")
	paraPrefix  = []byte("systoken/para/")
)

func tokenKey(id types.SystemTokenID) []byte {
	return append(append([]byte(nil), tokenPrefix...), id.Bytes()...)
}

func linkKey(link types.LocalLink) []byte {
	return append(append([]byte(nil), linkPrefix...), link.Bytes()...)
}

func paraKey(paraID uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], paraID)
	return append(append([]byte(nil), paraPrefix...), buf[:]...)
}
