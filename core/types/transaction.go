package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnsigned is returned by From when the transaction carries no signature.
var ErrUnsigned = errors.New("transaction is not signed")

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeTransfer         TxType = 0x01 // Native value transfer
	TxTypeRentalInitialize TxType = 0x10 // Owner lists an asset into rental escrow
	TxTypeRentalBorrow     TxType = 0x11 // Renter pays the listed price
	TxTypeRentalWithdraw   TxType = 0x12 // Owner reclaims the asset and sweeps the record
	TxTypeAssetMint        TxType = 0x20 // Creates a single-unit asset owned by the sender
)

// String returns a stable label used in logs and metrics.
func (t TxType) String() string {
	switch t {
	case TxTypeTransfer:
		return "transfer"
	case TxTypeRentalInitialize:
		return "rental_initialize"
	case TxTypeRentalBorrow:
		return "rental_borrow"
	case TxTypeRentalWithdraw:
		return "rental_withdraw"
	case TxTypeAssetMint:
		return "asset_mint"
	default:
		return "unknown"
	}
}

// Transaction is a signed request to mutate ledger state. Rental operations
// carry their parameters as a JSON payload in Data.
type Transaction struct {
	Type  TxType   `json:"type"`
	Nonce uint64   `json:"nonce"`
	To    []byte   `json:"to,omitempty"`
	Value *big.Int `json:"value,omitempty"`
	Data  []byte   `json:"data,omitempty"`

	R *big.Int `json:"r,omitempty"`
	S *big.Int `json:"s,omitempty"`
	V *big.Int `json:"v,omitempty"`

	from []byte
}

// Hash covers every field except the signature.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		Type  TxType
		Nonce uint64
		To    []byte
		Value *big.Int
		Data  []byte
	}{tx.Type, tx.Nonce, tx.To, tx.Value, tx.Data}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// Signed reports whether signature components are attached.
func (tx *Transaction) Signed() bool {
	return tx.R != nil && tx.S != nil && tx.V != nil
}

// From recovers the signer address. Unsigned transactions return ErrUnsigned.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if !tx.Signed() {
		return nil, ErrUnsigned
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	if len(tx.R.Bytes()) > 32 || len(tx.S.Bytes()) > 32 || tx.V.Uint64() < 27 {
		return nil, errors.New("malformed transaction signature")
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}
