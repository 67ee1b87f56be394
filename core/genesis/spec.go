package genesis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"
)

// GenesisSpec describes the ledger state a fresh node starts from.
type GenesisSpec struct {
	GenesisTime string            `json:"genesisTime"`
	Alloc       map[string]string `json:"alloc"` // addr -> native amount
	Assets      []AssetSpec       `json:"assets"`
	Paused      []string          `json:"paused,omitempty"`

	genesisTimestamp time.Time
	balances         map[[20]byte]*big.Int
	assets           []parsedAsset
}

// AssetSpec mints a single-unit asset into Owner's custody account.
type AssetSpec struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"` // 32-byte hex identifier
	// Account overrides the default asset account address of the owner.
	Account string `json:"account,omitempty"`
}

type parsedAsset struct {
	owner   [20]byte
	mint    [32]byte
	account *[20]byte
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Validate parses every address and amount so application cannot fail half
// way through.
func (s *GenesisSpec) Validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	s.balances = make(map[[20]byte]*big.Int, len(s.Alloc))
	for addrStr, amountStr := range s.Alloc {
		addr, err := ParseBech32Account(strings.TrimSpace(addrStr))
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		amount, err := parseAmountString(amountStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		if _, dup := s.balances[addr]; dup {
			return fmt.Errorf("alloc %q: duplicate address", addrStr)
		}
		s.balances[addr] = amount
	}

	s.assets = make([]parsedAsset, 0, len(s.Assets))
	seen := make(map[[32]byte]struct{}, len(s.Assets))
	for i, asset := range s.Assets {
		owner, err := ParseBech32Account(strings.TrimSpace(asset.Owner))
		if err != nil {
			return fmt.Errorf("asset[%d] owner: %w", i, err)
		}
		mint, err := parseMint(asset.Mint)
		if err != nil {
			return fmt.Errorf("asset[%d]: %w", i, err)
		}
		if _, dup := seen[mint]; dup {
			return fmt.Errorf("asset[%d]: duplicate mint %s", i, asset.Mint)
		}
		seen[mint] = struct{}{}
		parsed := parsedAsset{owner: owner, mint: mint}
		if strings.TrimSpace(asset.Account) != "" {
			account, err := ParseBech32Account(strings.TrimSpace(asset.Account))
			if err != nil {
				return fmt.Errorf("asset[%d] account: %w", i, err)
			}
			parsed.account = &account
		}
		s.assets = append(s.assets, parsed)
	}
	sort.Slice(s.assets, func(i, j int) bool {
		return bytes.Compare(s.assets[i].mint[:], s.assets[j].mint[:]) < 0
	})
	for _, module := range s.Paused {
		if strings.TrimSpace(module) == "" {
			return fmt.Errorf("paused: module name must not be empty")
		}
	}
	return nil
}

func parseMint(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid mint %q: %w", value, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid mint %q: expected 32 bytes", value)
	}
	copy(out[:], raw)
	return out, nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
