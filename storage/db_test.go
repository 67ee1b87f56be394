package storage

import (
	"errors"
	"testing"
)

func TestMemDBGetMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	if _, err := db.Get([]byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	value := []byte("head")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "head" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
}

func TestLevelDBMissingKeyMapsToErrNotFound(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	if _, err := db.Get([]byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("present"), []byte{0x01}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("present"))
	if err != nil || len(got) != 1 || got[0] != 0x01 {
		t.Fatalf("unexpected get result %x %v", got, err)
	}
}
