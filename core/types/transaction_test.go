package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestTransactionSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := &Transaction{Type: TxTypeRentalBorrow, Nonce: 3, Data: []byte(`{"owner":"x"}`)}
	if err := tx.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	from, err := tx.From()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	expected := crypto.PubkeyToAddress(key.PublicKey).Bytes()
	if !bytes.Equal(from, expected) {
		t.Fatalf("recovered %x, want %x", from, expected)
	}
}

func TestTransactionUnsignedHasNoSigner(t *testing.T) {
	tx := &Transaction{Type: TxTypeTransfer, Value: big.NewInt(1)}
	if _, err := tx.From(); !errors.Is(err, ErrUnsigned) {
		t.Fatalf("expected ErrUnsigned, got %v", err)
	}
}

func TestTransactionTamperChangesSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := &Transaction{Type: TxTypeTransfer, Nonce: 1, Value: big.NewInt(10)}
	if err := tx.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	tampered := &Transaction{Type: tx.Type, Nonce: tx.Nonce, Value: big.NewInt(11), R: tx.R, S: tx.S, V: tx.V}
	from, err := tampered.From()
	if err == nil && bytes.Equal(from, crypto.PubkeyToAddress(key.PublicKey).Bytes()) {
		t.Fatalf("tampered transaction still recovered original signer")
	}
}

func TestTransactionSignatureSurvivesJSON(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := &Transaction{Type: TxTypeTransfer, Nonce: 1, To: bytes.Repeat([]byte{0x02}, 20), Value: big.NewInt(9)}
	if err := tx.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Transaction
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	from, err := decoded.From()
	if err != nil {
		t.Fatalf("recover decoded signer: %v", err)
	}
	if !bytes.Equal(from, crypto.PubkeyToAddress(key.PublicKey).Bytes()) {
		t.Fatalf("decoded signer mismatch")
	}
}
