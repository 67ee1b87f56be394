package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, AddressLength)
	addr := MustNewAddress(RentPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "rnt1") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	parsed, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if !bytes.Equal(parsed[:], raw) {
		t.Fatalf("round trip mismatch: %x", parsed)
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	raw := bytes.Repeat([]byte{0x01}, AddressLength)
	foreign := MustNewAddress(AddressPrefix("nhb"), raw).String()
	if _, err := ParseAddress(foreign); err == nil {
		t.Fatalf("expected prefix error")
	}
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	if _, err := NewAddress(RentPrefix, []byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "renter.json")
	key, err := CreateKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("create keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("keystore returned a different key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
