package config

import (
	"fmt"
	"math/big"
	"strings"

	"rentescrow/core/genesis"
	"rentescrow/native/rental"
)

// RentalRuntime is the parsed form of the [Rental] section.
type RentalRuntime struct {
	NamespaceTag  string
	Payout        rental.PayoutMode
	RecordDeposit *big.Int
}

// RentalRuntime parses the configured rental knobs into runtime values.
func (c *Config) RentalRuntime() (RentalRuntime, error) {
	out := RentalRuntime{NamespaceTag: c.Rental.NamespaceTag}
	mode, err := rental.ParsePayoutMode(strings.ToLower(strings.TrimSpace(c.Rental.PayoutMode)))
	if err != nil {
		return out, fmt.Errorf("invalid Rental.PayoutMode: %w", err)
	}
	out.Payout = mode
	deposit, err := parseUintAmount(c.Rental.RecordDeposit)
	if err != nil {
		return out, fmt.Errorf("invalid Rental.RecordDeposit: %w", err)
	}
	out.RecordDeposit = deposit
	return out, nil
}

// GenesisSpec builds the genesis document for a fresh ledger, either from
// GenesisFile or from the inline [Genesis] section. It returns nil when
// neither is configured.
func (c *Config) GenesisSpec() (*genesis.GenesisSpec, error) {
	if c.GenesisFile != "" {
		return genesis.LoadGenesisSpec(c.GenesisFile)
	}
	if len(c.Genesis.Accounts) == 0 && len(c.Genesis.Assets) == 0 && len(c.Rental.Paused) == 0 {
		return nil, nil
	}
	spec := &genesis.GenesisSpec{
		GenesisTime: c.Genesis.Time,
		Alloc:       make(map[string]string, len(c.Genesis.Accounts)),
		Paused:      append([]string(nil), c.Rental.Paused...),
	}
	if spec.GenesisTime == "" {
		spec.GenesisTime = "1970-01-01T00:00:00Z"
	}
	for _, acc := range c.Genesis.Accounts {
		spec.Alloc[acc.Address] = acc.Balance
	}
	for _, asset := range c.Genesis.Assets {
		spec.Assets = append(spec.Assets, genesis.AssetSpec{Owner: asset.Owner, Mint: asset.Mint, Account: asset.Account})
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("inline genesis: %w", err)
	}
	return spec, nil
}

func parseUintAmount(v string) (*big.Int, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal amount", v)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", v)
	}
	return amount, nil
}
