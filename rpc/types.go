package rpc

import (
	"encoding/hex"
	"math/big"

	"rentescrow/core"
	"rentescrow/core/types"
	"rentescrow/crypto"
	"rentescrow/native/rental"
)

// RecordResult is the JSON view of a rental record.
type RecordResult struct {
	Address    string `json:"address"`
	Bump       uint8  `json:"bump"`
	Owner      string `json:"owner"`
	Custody    string `json:"custody"`
	Renter     string `json:"renter,omitempty"`
	RentedAt   int64  `json:"rentedAt,omitempty"`
	Price      uint64 `json:"price"`
	Expiration int64  `json:"expiration"`
	State      string `json:"state"`
	Phase      string `json:"phase,omitempty"`
	Active     bool   `json:"active"`
}

// ReceiptResult summarises a committed transaction.
type ReceiptResult struct {
	TransactionHash string            `json:"transactionHash"`
	Type            string            `json:"type"`
	Sender          string            `json:"sender"`
	Height          uint64            `json:"height"`
	Record          *RecordResult     `json:"record,omitempty"`
	Swept           string            `json:"swept,omitempty"`
	Mint            string            `json:"mint,omitempty"`
	AssetAccount    string            `json:"assetAccount,omitempty"`
	Logs            []ReceiptLog      `json:"logs"`
}

// ReceiptLog captures a structured event emitted during transaction execution.
type ReceiptLog struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// BalanceResult reports the native account of an address.
type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// AssetAccountResult reports an asset custody account.
type AssetAccountResult struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// DeriveResult is the derived record reference of an owner.
type DeriveResult struct {
	Owner   string `json:"owner"`
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

func recordResult(ref rental.RecordRef, rec *rental.Record) *RecordResult {
	if rec == nil {
		return nil
	}
	out := &RecordResult{
		Address:    crypto.FormatAddress(ref.Address),
		Bump:       ref.Bump,
		Owner:      crypto.FormatAddress(rec.Owner),
		Custody:    crypto.FormatAddress(rec.Custody),
		Price:      rec.Price,
		Expiration: rec.Expiration,
		State:      rec.State.String(),
	}
	if rec.Renter != nil {
		out.Renter = crypto.FormatAddress(*rec.Renter)
		out.RentedAt = rec.RentedAt
	}
	return out
}

func viewResult(view *core.RentalView) *RecordResult {
	out := recordResult(view.Ref, view.Record)
	if out != nil {
		out.Phase = view.Phase.String()
		out.Active = view.Active
	}
	return out
}

func receiptResult(receipt *core.Receipt) ReceiptResult {
	out := ReceiptResult{
		TransactionHash: "0x" + hex.EncodeToString(receipt.TxHash),
		Type:            receipt.Type.String(),
		Sender:          crypto.FormatAddress(receipt.Sender),
		Height:          receipt.Height,
		Logs:            make([]ReceiptLog, 0, len(receipt.Events)),
	}
	if receipt.Record != nil && receipt.RecordAddress != nil {
		out.Record = recordResult(rental.RecordRef{Address: *receipt.RecordAddress, Bump: receipt.Record.Bump}, receipt.Record)
	}
	if receipt.Swept != nil {
		out.Swept = receipt.Swept.String()
	}
	if receipt.Mint != nil {
		out.Mint = "0x" + hex.EncodeToString(receipt.Mint[:])
	}
	if receipt.AssetAccount != nil {
		out.AssetAccount = crypto.FormatAddress(*receipt.AssetAccount)
	}
	for _, evt := range receipt.Events {
		out.Logs = append(out.Logs, ReceiptLog{Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}

// HeightResult reports the committed ledger height and, when the event journal
// is enabled, the highest height it has recorded.
type HeightResult struct {
	Ledger  uint64  `json:"ledger"`
	Journal *uint64 `json:"journal,omitempty"`
}

func balanceResult(addr [20]byte, account *types.Account) BalanceResult {
	balance := big.NewInt(0)
	if account != nil && account.Balance != nil {
		balance = account.Balance
	}
	nonce := uint64(0)
	if account != nil {
		nonce = account.Nonce
	}
	return BalanceResult{Address: crypto.FormatAddress(addr), Balance: balance.String(), Nonce: nonce}
}
