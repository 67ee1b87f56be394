package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"rentescrow/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 0)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieRevertDiscardsMutations(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	kept := crypto.Keccak256([]byte("kept"))
	dropped := crypto.Keccak256([]byte("dropped"))
	require.NoError(t, tr.Update(kept, []byte{0x01}))

	snap := tr.Snapshot()
	before := tr.Hash()

	require.NoError(t, tr.Update(dropped, []byte{0x02}))
	require.NoError(t, tr.Delete(kept))
	require.NotEqual(t, before, tr.Hash())

	tr.Revert(snap)
	require.Equal(t, before, tr.Hash())

	got, err := tr.Get(kept)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)

	missing, err := tr.Get(dropped)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestTrieDeleteRemovesKey(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	key := crypto.Keccak256([]byte("record"))
	require.NoError(t, tr.Update(key, []byte("payload")))
	require.NoError(t, tr.Delete(key))

	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Empty(t, got)
}
