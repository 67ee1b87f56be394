package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rentescrow/core/types"
	"rentescrow/crypto"
)

const (
	// TypeTransfer is emitted for native value movements.
	TypeTransfer = "transfer.native"
	// TypeAssetTransfer is emitted when an asset unit moves between custody
	// accounts.
	TypeAssetTransfer = "transfer.asset"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	attrs["from"] = crypto.FormatAddress(e.From)
	attrs["to"] = crypto.FormatAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type AssetTransfer struct {
	Mint      [32]byte
	From      [20]byte
	To        [20]byte
	Authority [20]byte
	Amount    uint64
}

func (AssetTransfer) EventType() string { return TypeAssetTransfer }

func (e AssetTransfer) Event() *types.Event {
	attrs := map[string]string{
		"mint":      "0x" + hex.EncodeToString(e.Mint[:]),
		"from":      crypto.FormatAddress(e.From),
		"to":        crypto.FormatAddress(e.To),
		"authority": crypto.FormatAddress(e.Authority),
		"amount":    strconv.FormatUint(e.Amount, 10),
	}
	return &types.Event{Type: TypeAssetTransfer, Attributes: attrs}
}
