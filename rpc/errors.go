package rpc

import (
	"errors"
	"net/http"

	"rentescrow/core"
	nativecommon "rentescrow/native/common"
	"rentescrow/native/rental"
)

// Rental failure codes.
const (
	codeNoSigner            = -32031
	codeNotOwner            = -32032
	codeNotExpired          = -32033
	codeInsufficientBalance = -32034
	codeWrongAddress        = -32035
	codeAddressMismatch     = -32036
	codeRecordNotFound      = -32037
	codeListingConflict     = -32038
	codeInvalidTerms        = -32039
	codeModulePaused        = -32040
)

var errorCodes = []struct {
	err    error
	code   int
	status int
}{
	{rental.ErrNoSigner, codeNoSigner, http.StatusUnauthorized},
	{rental.ErrNotOwner, codeNotOwner, http.StatusForbidden},
	{rental.ErrNotExpired, codeNotExpired, http.StatusConflict},
	{rental.ErrInsufficientBalance, codeInsufficientBalance, http.StatusPaymentRequired},
	{core.ErrInsufficientFunds, codeInsufficientBalance, http.StatusPaymentRequired},
	{rental.ErrWrongAddress, codeWrongAddress, http.StatusBadRequest},
	{rental.ErrAddressMismatch, codeAddressMismatch, http.StatusBadRequest},
	{rental.ErrRecordNotFound, codeRecordNotFound, http.StatusNotFound},
	{rental.ErrRecordExists, codeListingConflict, http.StatusConflict},
	{rental.ErrAlreadyRented, codeListingConflict, http.StatusConflict},
	{rental.ErrListingExpired, codeListingConflict, http.StatusConflict},
	{rental.ErrInvalidPrice, codeInvalidTerms, http.StatusBadRequest},
	{rental.ErrInvalidExpiration, codeInvalidTerms, http.StatusBadRequest},
	{rental.ErrInvalidAsset, codeInvalidTerms, http.StatusBadRequest},
	{rental.ErrUnauthorizedAsset, codeInvalidTerms, http.StatusForbidden},
	{nativecommon.ErrModulePaused, codeModulePaused, http.StatusServiceUnavailable},
	{core.ErrNonceMismatch, codeInvalidParams, http.StatusBadRequest},
	{core.ErrInvalidPayload, codeInvalidParams, http.StatusBadRequest},
	{core.ErrUnknownTxType, codeInvalidParams, http.StatusBadRequest},
}

// classifyError maps a ledger failure onto an HTTP status and JSON-RPC code.
func classifyError(err error) (int, int) {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.status, entry.code
		}
	}
	return http.StatusInternalServerError, codeServerError
}

func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classifyError(err)
	data := map[string]string{"error": err.Error()}
	if kind := rental.ErrorKind(err); kind != "" {
		data["kind"] = kind
	}
	writeError(w, status, id, code, "transaction rejected", data)
}
