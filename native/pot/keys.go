package pot

import "encoding/binary"

var (
	ledgerEntryPrefix = []byte("pot/ledger/entry/")
	ledgerSeqKey      = []byte("pot/ledger/seq")
	paramsKey         = []byte("pot/params")
	seedPoolKey       = []byte("pot/seedpool")
	lastElectedKey    = []byte("pot/elected/last")
	eraPotPrefix      = []byte("pot/era/")
)

func ledgerEntryKey(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(append([]byte(nil), ledgerEntryPrefix...), buf[:]...)
}

func eraPotKey(era uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], era)
	return append(append([]byte(nil), eraPotPrefix...), buf[:]...)
}
