package rental

import (
	"math/big"
	"strconv"

	"rentescrow/core/types"
	"rentescrow/crypto"
)

const (
	EventTypeListed    = "rental.listed"
	EventTypeBorrowed  = "rental.borrowed"
	EventTypeWithdrawn = "rental.withdrawn"
)

type rentalEvent struct {
	evt *types.Event
}

func (e rentalEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e rentalEvent) Event() *types.Event { return e.evt }

// NewListedEvent returns the canonical payload for a newly escrowed listing.
func NewListedEvent(addr [20]byte, rec *Record) *types.Event {
	return recordEvent(EventTypeListed, addr, rec)
}

// NewBorrowedEvent returns the canonical payload emitted when a renter pays
// for the listing.
func NewBorrowedEvent(addr [20]byte, rec *Record) *types.Event {
	return recordEvent(EventTypeBorrowed, addr, rec)
}

// NewWithdrawnEvent returns the payload emitted when the owner reclaims the
// asset. swept is the native value returned from the record account.
func NewWithdrawnEvent(addr [20]byte, rec *Record, swept *big.Int) *types.Event {
	evt := recordEvent(EventTypeWithdrawn, addr, rec)
	evt.Attributes["swept"] = cloneBigInt(swept).String()
	return evt
}

func newRentalEvent(eventType string, addr [20]byte, rec *Record) rentalEvent {
	return rentalEvent{evt: recordEvent(eventType, addr, rec)}
}

func newWithdrawnEvent(addr [20]byte, rec *Record, swept *big.Int) rentalEvent {
	return rentalEvent{evt: NewWithdrawnEvent(addr, rec, swept)}
}

func recordEvent(eventType string, addr [20]byte, rec *Record) *types.Event {
	attrs := make(map[string]string)
	attrs["record"] = formatAddr(addr)
	if rec == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["owner"] = formatAddr(rec.Owner)
	attrs["custody"] = formatAddr(rec.Custody)
	attrs["price"] = strconv.FormatUint(rec.Price, 10)
	attrs["expiration"] = strconv.FormatInt(rec.Expiration, 10)
	attrs["state"] = rec.State.String()
	attrs["bump"] = strconv.FormatUint(uint64(rec.Bump), 10)
	if rec.Renter != nil {
		attrs["renter"] = formatAddr(*rec.Renter)
		attrs["rentedAt"] = strconv.FormatInt(rec.RentedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func formatAddr(addr [20]byte) string {
	return crypto.FormatAddress(addr)
}
