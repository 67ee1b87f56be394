package genesis

import (
	"bytes"
	"fmt"
	"sort"

	"rentescrow/core/state"
	"rentescrow/core/types"
)

// Apply writes the validated genesis allocations into state. Addresses are
// applied in sorted order so every node derives the same root.
func Apply(spec *GenesisSpec, manager *state.Manager) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	if spec.balances == nil {
		if err := spec.Validate(); err != nil {
			return err
		}
	}

	addrs := make([][20]byte, 0, len(spec.balances))
	for addr := range spec.balances {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	for _, addr := range addrs {
		account := &types.Account{Balance: spec.balances[addr]}
		if err := manager.PutAccount(addr[:], account); err != nil {
			return fmt.Errorf("alloc %x: %w", addr, err)
		}
	}

	for _, asset := range spec.assets {
		account := state.AssetAccountAddress(asset.owner, asset.mint)
		if asset.account != nil {
			account = *asset.account
		}
		if _, exists, err := manager.AssetAccount(account); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("asset %x: account %x already allocated", asset.mint, account)
		}
		if err := manager.PutAssetAccount(account, &types.AssetAccount{Mint: asset.mint, Owner: asset.owner, Amount: 1}); err != nil {
			return fmt.Errorf("asset %x: %w", asset.mint, err)
		}
	}

	for _, module := range spec.Paused {
		if err := manager.SetPaused(module, true); err != nil {
			return fmt.Errorf("pause %q: %w", module, err)
		}
	}
	return manager.SetStateVersion(state.StateVersion)
}
