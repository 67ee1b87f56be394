package rental

import (
	"fmt"
	"math/big"

	"rentescrow/core/events"
	"rentescrow/core/types"
)

// assetUnit is the only amount the custody adapter ever moves.
const assetUnit = 1

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// transferAsset moves one asset unit between custody accounts under the
// supplied authority. The destination is created with the given owner when it
// does not exist yet. Fully validated before any write.
func (e *Engine) transferAsset(from, to, authority, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if from == to {
		return fmt.Errorf("%w: source and destination asset accounts coincide", ErrWrongAddress)
	}
	src, ok, err := e.state.AssetAccount(from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: source asset account missing", ErrInvalidAsset)
	}
	if src.Owner != authority {
		return ErrUnauthorizedAsset
	}
	if src.Amount < assetUnit {
		return fmt.Errorf("%w: source asset account is empty", ErrInvalidAsset)
	}
	dst, ok, err := e.state.AssetAccount(to)
	if err != nil {
		return err
	}
	if !ok {
		dst = &types.AssetAccount{Mint: src.Mint, Owner: newOwner}
	}
	if dst.Mint != src.Mint {
		return fmt.Errorf("%w: destination holds a different mint", ErrWrongAddress)
	}
	src.Amount -= assetUnit
	dst.Amount += assetUnit
	if err := e.state.PutAssetAccount(from, src); err != nil {
		return err
	}
	if err := e.state.PutAssetAccount(to, dst); err != nil {
		return err
	}
	e.emit(events.AssetTransfer{Mint: src.Mint, From: from, To: to, Authority: authority, Amount: assetUnit})
	return nil
}

// transferValue moves native value units. A zero amount is a no-op.
func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("rental: negative transfer amount")
	}
	if amt.Sign() == 0 || from == to {
		return nil
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, formatAddr(from), fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = ensureAccount(toAcc)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	e.emit(events.Transfer{From: from, To: to, Amount: amt})
	return nil
}

func (e *Engine) balanceOf(addr [20]byte) (*big.Int, error) {
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return cloneBigInt(ensureAccount(acc).Balance), nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
