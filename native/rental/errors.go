package rental

import "errors"

// Failure kinds surfaced by the rental engine. Every mutating operation aborts
// on the first failure; the host discards all state touched by the
// transaction.
var (
	ErrNoSigner            = errors.New("rental: no signer was found for the transaction")
	ErrNotOwner            = errors.New("rental: caller is not the token owner")
	ErrNotExpired          = errors.New("rental: rental has not expired")
	ErrInsufficientBalance = errors.New("rental: insufficient balance")
	ErrWrongAddress        = errors.New("rental: presented account does not match the record")
	ErrAddressMismatch     = errors.New("rental: derivation proof does not reproduce the record address")

	ErrRecordNotFound    = errors.New("rental: record not found")
	ErrRecordExists      = errors.New("rental: owner already has an active listing")
	ErrAlreadyRented     = errors.New("rental: asset is already rented")
	ErrListingExpired    = errors.New("rental: listing has expired")
	ErrInvalidPrice      = errors.New("rental: price must be positive")
	ErrInvalidExpiration = errors.New("rental: expiration must be in the future")
	ErrInvalidAsset      = errors.New("rental: owner asset account must hold exactly one unit")
	ErrUnauthorizedAsset = errors.New("rental: authority does not control the asset account")
	ErrNoViableBump      = errors.New("rental: no viable bump for derived address")
	ErrCorruptRecord     = errors.New("rental: malformed record encoding")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNoSigner, "no_signer"},
	{ErrNotOwner, "not_owner"},
	{ErrNotExpired, "not_expired"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrWrongAddress, "wrong_address"},
	{ErrAddressMismatch, "address_mismatch"},
	{ErrRecordNotFound, "record_not_found"},
	{ErrRecordExists, "record_exists"},
	{ErrAlreadyRented, "already_rented"},
	{ErrListingExpired, "listing_expired"},
	{ErrInvalidPrice, "invalid_price"},
	{ErrInvalidExpiration, "invalid_expiration"},
	{ErrInvalidAsset, "invalid_asset"},
	{ErrUnauthorizedAsset, "unauthorized_asset"},
	{ErrNoViableBump, "no_viable_bump"},
	{ErrCorruptRecord, "corrupt_record"},
}

// ErrorKind returns a stable label for a rental failure, or "" when err is
// not one of the package sentinels.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}
