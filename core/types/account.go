package types

import "math/big"

// Account holds the native value balance of a ledger identity together with
// the nonce used to reject replayed transactions.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// AssetAccount is a custody account for a single non-fungible asset. Owner is
// the authority allowed to move the unit out of the account; for escrow
// custody accounts that authority is the rental record address.
type AssetAccount struct {
	Mint   [32]byte `json:"mint"`
	Owner  [20]byte `json:"owner"`
	Amount uint64   `json:"amount"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
