package rental

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecord(rented bool) *Record {
	rec := &Record{
		Owner:      newTestAddress(0x01),
		Custody:    newTestAddress(0x03),
		Price:      100,
		Expiration: testNow + 3600,
		State:      CustodyEscrowed,
		Bump:       254,
	}
	if rented {
		renter := newTestAddress(0x02)
		rec.Renter = &renter
		rec.RentedAt = testNow + 10
		rec.State = CustodyRented
	}
	return rec
}

func TestRecordBinaryEncoding(t *testing.T) {
	for _, rented := range []bool{false, true} {
		rec := sampleRecord(rented)
		data, err := rec.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, RecordSize)

		var decoded Record
		require.NoError(t, decoded.UnmarshalBinary(data))
		require.Equal(t, rec, &decoded)
	}
}

func TestRecordFlagsFollowCustodyState(t *testing.T) {
	data, err := sampleRecord(true).MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte(flagLocked|flagWrapperOutstanding), data[RecordSize-2])

	data, err = sampleRecord(false).MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte(flagLocked), data[RecordSize-2])
}

func TestRecordRejectsIllegalEncodings(t *testing.T) {
	valid, err := sampleRecord(true).MarshalBinary()
	require.NoError(t, err)
	unrented, err := sampleRecord(false).MarshalBinary()
	require.NoError(t, err)

	mutate := func(src []byte, fn func([]byte)) []byte {
		out := append([]byte(nil), src...)
		fn(out)
		return out
	}
	cases := map[string][]byte{
		"short":                  valid[:RecordSize-1],
		"version":                mutate(valid, func(b []byte) { b[0] = 9 }),
		"renter tag":             mutate(valid, func(b []byte) { b[21] = 2 }),
		"no flags":               mutate(valid, func(b []byte) { b[RecordSize-2] = 0 }),
		"wrapper without lock":   mutate(valid, func(b []byte) { b[RecordSize-2] = flagWrapperOutstanding }),
		"renter without wrapper": mutate(valid, func(b []byte) { b[RecordSize-2] = flagLocked }),
		"wrapper without renter": mutate(unrented, func(b []byte) { b[RecordSize-2] = flagLocked | flagWrapperOutstanding }),
	}
	for name, data := range cases {
		var rec Record
		err := rec.UnmarshalBinary(data)
		if !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("%s: expected ErrCorruptRecord, got %v", name, err)
		}
	}
}

func TestRecordValidate(t *testing.T) {
	rec := sampleRecord(false)
	rec.State = CustodyRented
	require.ErrorIs(t, rec.Validate(), ErrCorruptRecord)

	rec = sampleRecord(false)
	rec.RentedAt = 5
	require.ErrorIs(t, rec.Validate(), ErrCorruptRecord)

	rec = sampleRecord(false)
	rec.State = CustodyIdle
	require.ErrorIs(t, rec.Validate(), ErrCorruptRecord)

	require.NoError(t, sampleRecord(true).Validate())
}

func TestRecordPhase(t *testing.T) {
	require.Equal(t, PhaseListed, sampleRecord(false).Phase(testNow+10_000))
	rented := sampleRecord(true)
	require.Equal(t, PhaseRented, rented.Phase(testNow+3599))
	require.Equal(t, PhaseReclaimable, rented.Phase(testNow+3600))
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := sampleRecord(true)
	clone := rec.Clone()
	clone.Renter[0] = 0xFF
	require.NotEqual(t, rec.Renter[0], clone.Renter[0])
}

func TestErrorKind(t *testing.T) {
	require.Equal(t, "not_expired", ErrorKind(ErrNotExpired))
	require.Equal(t, "insufficient_balance", ErrorKind(fmt.Errorf("wrapped: %w", ErrInsufficientBalance)))
	require.Equal(t, "", ErrorKind(errors.New("other")))
}
