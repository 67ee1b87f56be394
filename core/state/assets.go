package state

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"rentescrow/core/types"
)

type storedAssetAccount struct {
	Mint   []byte
	Owner  []byte
	Amount uint64
}

func assetAccountKey(addr [20]byte) []byte {
	return prefixedKey(assetPrefix, addr[:])
}

// AssetAccount returns the custody account stored at addr.
func (m *Manager) AssetAccount(addr [20]byte) (*types.AssetAccount, bool, error) {
	data, err := m.trie.Get(assetAccountKey(addr))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	var stored storedAssetAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("decode asset account: %w", err)
	}
	if len(stored.Mint) != 32 || len(stored.Owner) != 20 {
		return nil, false, fmt.Errorf("asset account: malformed encoding")
	}
	account := &types.AssetAccount{Amount: stored.Amount}
	copy(account.Mint[:], stored.Mint)
	copy(account.Owner[:], stored.Owner)
	return account, true, nil
}

// PutAssetAccount persists the custody account at addr.
func (m *Manager) PutAssetAccount(addr [20]byte, account *types.AssetAccount) error {
	if account == nil {
		return fmt.Errorf("nil asset account")
	}
	encoded, err := rlp.EncodeToBytes(storedAssetAccount{
		Mint:   append([]byte(nil), account.Mint[:]...),
		Owner:  append([]byte(nil), account.Owner[:]...),
		Amount: account.Amount,
	})
	if err != nil {
		return err
	}
	return m.trie.Update(assetAccountKey(addr), encoded)
}

// DeleteAssetAccount closes the custody account at addr.
func (m *Manager) DeleteAssetAccount(addr [20]byte) error {
	return m.trie.Delete(assetAccountKey(addr))
}

// AssetAccountAddress returns the default custody account of owner for mint.
func AssetAccountAddress(owner [20]byte, mint [32]byte) [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("asset-account"), owner[:], mint[:])[12:])
	return addr
}

// MintID derives the identifier of an asset minted by creator with nonce.
func MintID(creator [20]byte, nonce uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256([]byte("asset-mint"), creator[:], buf[:]))
	return id
}
