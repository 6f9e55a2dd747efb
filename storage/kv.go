package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KV exposes RLP-encoded typed values on top of a Database. Module stores
// depend on the narrow KVGet/KVPut/KVDelete contract rather than on the
// backend.
type KV struct {
	db     Database
	prefix []byte
}

// NewKV wraps the database. Keys are namespaced under prefix so several
// runtimes can share one backend.
func NewKV(db Database, prefix string) *KV {
	return &KV{db: db, prefix: []byte(prefix)}
}

func (s *KV) key(key []byte) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("kv: database not configured")
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("kv: key must not be empty")
	}
	full := make([]byte, 0, len(s.prefix)+len(key))
	full = append(full, s.prefix...)
	return append(full, key...), nil
}

// KVPut encodes value with RLP and stores it under key.
func (s *KV) KVPut(key []byte, value interface{}) error {
	full, err := s.key(key)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.db.Put(full, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (s *KV) KVGet(key []byte, out interface{}) (bool, error) {
	full, err := s.key(key)
	if err != nil {
		return false, err
	}
	data, err := s.db.Get(full)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes key.
func (s *KV) KVDelete(key []byte) error {
	full, err := s.key(key)
	if err != nil {
		return err
	}
	return s.db.Delete(full)
}

// KVKeys lists keys beginning with prefix, stripped of the namespace.
func (s *KV) KVKeys(prefix []byte) ([][]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("kv: database not configured")
	}
	full := append(append([]byte(nil), s.prefix...), prefix...)
	keys, err := s.db.Keys(full)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = key[len(s.prefix):]
	}
	return out, nil
}
