package state

import (
	"fmt"

	"rentescrow/native/rental"
)

func rentalRecordKey(addr [20]byte) []byte {
	return prefixedKey(rentalPrefix, addr[:])
}

// RentalGet loads the rental record stored at the derived address.
func (m *Manager) RentalGet(addr [20]byte) (*rental.Record, bool, error) {
	data, err := m.trie.Get(rentalRecordKey(addr))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	rec := new(rental.Record)
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// RentalPut stores rec at the derived address using its fixed-width layout.
func (m *Manager) RentalPut(addr [20]byte, rec *rental.Record) error {
	if rec == nil {
		return fmt.Errorf("nil rental record")
	}
	encoded, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return m.trie.Update(rentalRecordKey(addr), encoded)
}

// RentalDelete destroys the record at addr.
func (m *Manager) RentalDelete(addr [20]byte) error {
	return m.trie.Delete(rentalRecordKey(addr))
}
