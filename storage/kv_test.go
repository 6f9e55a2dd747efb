package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string
	Count uint64
}

func TestKVRoundTripMemDB(t *testing.T) {
	kv := NewKV(NewMemDB(), "test/")

	ok, err := kv.KVGet([]byte("missing"), &record{})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.KVPut([]byte("a"), record{Name: "alpha", Count: 3}))
	var got record
	ok, err = kv.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "alpha", Count: 3}, got)

	require.NoError(t, kv.KVDelete([]byte("a")))
	ok, err = kv.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVRejectsEmptyKey(t *testing.T) {
	kv := NewKV(NewMemDB(), "")
	require.Error(t, kv.KVPut(nil, record{}))
}

func TestKVKeysArePrefixScoped(t *testing.T) {
	db := NewMemDB()
	a := NewKV(db, "a/")
	b := NewKV(db, "b/")
	require.NoError(t, a.KVPut([]byte("x/2"), record{Count: 2}))
	require.NoError(t, a.KVPut([]byte("x/1"), record{Count: 1}))
	require.NoError(t, b.KVPut([]byte("x/3"), record{Count: 3}))

	keys, err := a.KVKeys([]byte("x/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("x/1"), []byte("x/2")}, keys)
}

func TestKVLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, NewKV(db1, "n/").KVPut([]byte("k"), record{Name: "persisted", Count: 9}))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	var got record
	ok, err := NewKV(db2, "n/").KVGet([]byte("k"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "persisted", got.Name)

	keys, err := NewKV(db2, "n/").KVKeys([]byte("k"))
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestKVBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	db1, err := Open(BackendBolt, path)
	require.NoError(t, err)
	kv := NewKV(db1, "n/")
	require.NoError(t, kv.KVPut([]byte("k/2"), record{Name: "two", Count: 2}))
	require.NoError(t, kv.KVPut([]byte("k/1"), record{Name: "one", Count: 1}))
	require.NoError(t, kv.KVPut([]byte("other"), record{}))
	require.NoError(t, kv.KVDelete([]byte("other")))
	db1.Close()

	db2, err := Open(BackendBolt, path)
	require.NoError(t, err)
	defer db2.Close()

	keys, err := NewKV(db2, "n/").KVKeys([]byte("k/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("k/1"), []byte("k/2")}, keys)

	var got record
	ok, err := NewKV(db2, "n/").KVGet([]byte("k/2"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), got.Count)

	_, err = db2.Get([]byte("n/other"))
	require.ErrorIs(t, err, ErrNotFound)
}
