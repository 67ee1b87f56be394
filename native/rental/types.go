package rental

import (
	"encoding/binary"
	"fmt"
)

// CustodyState tracks who controls the escrowed asset. It replaces the pair of
// locked/wrapper-outstanding flags so illegal combinations cannot be built.
type CustodyState uint8

const (
	CustodyIdle     CustodyState = iota // no asset in escrow
	CustodyEscrowed                     // owner ceded the asset, no renter yet
	CustodyRented                       // a renter holds the rental wrapper
)

// Valid reports whether the state value is within the supported range.
func (s CustodyState) Valid() bool {
	switch s {
	case CustodyIdle, CustodyEscrowed, CustodyRented:
		return true
	default:
		return false
	}
}

func (s CustodyState) String() string {
	switch s {
	case CustodyIdle:
		return "idle"
	case CustodyEscrowed:
		return "escrowed"
	case CustodyRented:
		return "rented"
	default:
		return "unknown"
	}
}

// Phase is the time-aware view of a record.
type Phase uint8

const (
	PhaseListed      Phase = iota + 1 // escrowed and waiting for a renter
	PhaseRented                       // renter assigned, window still open
	PhaseReclaimable                  // renter assigned, window closed
)

func (p Phase) String() string {
	switch p {
	case PhaseListed:
		return "listed"
	case PhaseRented:
		return "rented"
	case PhaseReclaimable:
		return "reclaimable"
	default:
		return "unknown"
	}
}

// Record is the persisted rental escrow entry for a single owner.
type Record struct {
	Owner      [20]byte
	Renter     *[20]byte
	Custody    [20]byte
	Price      uint64
	Expiration int64
	RentedAt   int64
	State      CustodyState
	Bump       uint8
}

// Clone returns a deep copy so callers can mutate it freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Renter != nil {
		renter := *r.Renter
		clone.Renter = &renter
	}
	return &clone
}

// Locked reports whether the owner has ceded the asset to escrow.
func (r *Record) Locked() bool {
	return r != nil && (r.State == CustodyEscrowed || r.State == CustodyRented)
}

// WrapperOutstanding reports whether a renter currently holds the rental.
func (r *Record) WrapperOutstanding() bool {
	return r != nil && r.State == CustodyRented
}

// Rented reports whether a renter has been assigned.
func (r *Record) Rented() bool {
	return r != nil && r.Renter != nil
}

// Phase classifies the record at the supplied time.
func (r *Record) Phase(now int64) Phase {
	if !r.Rented() {
		return PhaseListed
	}
	if now < r.Expiration {
		return PhaseRented
	}
	return PhaseReclaimable
}

// Validate checks the structural invariants of a stored record: a renter is
// present exactly when the asset is in the rented custody state.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrCorruptRecord)
	}
	if !r.State.Valid() || r.State == CustodyIdle {
		return fmt.Errorf("%w: invalid custody state %d", ErrCorruptRecord, r.State)
	}
	if (r.Renter != nil) != (r.State == CustodyRented) {
		return fmt.Errorf("%w: renter presence disagrees with custody state %s", ErrCorruptRecord, r.State)
	}
	if r.Renter == nil && r.RentedAt != 0 {
		return fmt.Errorf("%w: rented-at set without renter", ErrCorruptRecord)
	}
	return nil
}

// Fixed-width layout:
//
//	version(1) owner(20) renterTag(1) renter(20) custody(20)
//	price(8) expiration(8) rentedAt(8) flags(1) bump(1)
const (
	recordVersion = 1
	RecordSize    = 1 + 20 + 1 + 20 + 20 + 8 + 8 + 8 + 1 + 1

	flagLocked             = 1 << 0
	flagWrapperOutstanding = 1 << 1
)

// MarshalBinary encodes the record into its fixed-width layout.
func (r *Record) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, RecordSize)
	off := 0
	buf[off] = recordVersion
	off++
	off += copy(buf[off:], r.Owner[:])
	if r.Renter != nil {
		buf[off] = 1
		copy(buf[off+1:], r.Renter[:])
	}
	off += 21
	off += copy(buf[off:], r.Custody[:])
	binary.BigEndian.PutUint64(buf[off:], r.Price)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(r.Expiration))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(r.RentedAt))
	off += 8
	var flags byte
	if r.Locked() {
		flags |= flagLocked
	}
	if r.WrapperOutstanding() {
		flags |= flagWrapperOutstanding
	}
	buf[off] = flags
	off++
	buf[off] = r.Bump
	return buf, nil
}

// UnmarshalBinary decodes the fixed-width layout, rejecting wrong sizes,
// unknown versions and flag combinations that break the custody invariants.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrCorruptRecord, RecordSize, len(data))
	}
	if data[0] != recordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, data[0])
	}
	var out Record
	off := 1
	off += copy(out.Owner[:], data[off:off+20])
	switch data[off] {
	case 0:
	case 1:
		var renter [20]byte
		copy(renter[:], data[off+1:off+21])
		out.Renter = &renter
	default:
		return fmt.Errorf("%w: invalid renter tag %d", ErrCorruptRecord, data[off])
	}
	off += 21
	off += copy(out.Custody[:], data[off:off+20])
	out.Price = binary.BigEndian.Uint64(data[off:])
	off += 8
	out.Expiration = int64(binary.BigEndian.Uint64(data[off:]))
	off += 8
	out.RentedAt = int64(binary.BigEndian.Uint64(data[off:]))
	off += 8
	flags := data[off]
	off++
	out.Bump = data[off]

	switch flags {
	case flagLocked:
		out.State = CustodyEscrowed
	case flagLocked | flagWrapperOutstanding:
		out.State = CustodyRented
	default:
		return fmt.Errorf("%w: invalid flags %#x", ErrCorruptRecord, flags)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*r = out
	return nil
}
