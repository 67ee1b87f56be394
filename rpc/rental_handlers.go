package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rentescrow/core/types"
	"rentescrow/crypto"
	"rentescrow/indexer"
)

func (s *Server) submitter(expected types.TxType) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		s.handleSubmit(w, r, req, expected)
	}
}

// handleSubmit executes a signed transaction of the expected type and returns
// its receipt once committed.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest, expected types.TxType) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transaction parameter required", nil)
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction format", err.Error())
		return
	}
	if tx.Type != expected {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams,
			fmt.Sprintf("method %s expects a %s transaction", req.Method, expected), tx.Type.String())
		return
	}
	hashBytes, err := tx.Hash()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to hash transaction", err.Error())
		return
	}
	hash := hex.EncodeToString(hashBytes)
	if !s.rememberTx(hash, time.Now()) {
		writeError(w, http.StatusConflict, req.ID, codeDuplicateTx, "transaction has already been submitted", hash)
		return
	}

	receipt, err := s.node.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		// a rejected transaction may be corrected and resubmitted
		s.forgetTx(hash)
		s.logger.Info("transaction rejected",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("method", req.Method),
			slog.String("tx_hash", hash),
			slog.Any("error", err))
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiptResult(receipt))
}

func decodeAddressParam(req *RPCRequest, idx int, name string) ([20]byte, *RPCError) {
	if len(req.Params) <= idx {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: name + " parameter required"}
	}
	var raw string
	if err := json.Unmarshal(req.Params[idx], &raw); err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: "invalid " + name + " parameter", Data: err.Error()}
	}
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: "failed to decode " + name, Data: err.Error()}
	}
	return addr, nil
}

func writeRPCError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	writeError(w, http.StatusBadRequest, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

// handleRentalGet accepts {"owner": addr} or {"record": addr}.
func (s *Server) handleRentalGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var params struct {
		Owner  string `json:"owner"`
		Record string `json:"record"`
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	switch {
	case strings.TrimSpace(params.Owner) != "":
		owner, err := crypto.ParseAddress(strings.TrimSpace(params.Owner))
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to decode owner", err.Error())
			return
		}
		view, ok := s.node.Rental(owner)
		if !ok {
			writeError(w, http.StatusNotFound, req.ID, codeRecordNotFound, "rental record not found", params.Owner)
			return
		}
		writeResult(w, req.ID, viewResult(view))
	case strings.TrimSpace(params.Record) != "":
		addr, err := crypto.ParseAddress(strings.TrimSpace(params.Record))
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to decode record", err.Error())
			return
		}
		view, ok, err := s.node.RentalAt(addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load record", err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, req.ID, codeRecordNotFound, "rental record not found", params.Record)
			return
		}
		writeResult(w, req.ID, viewResult(view))
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner or record required", nil)
	}
}

func (s *Server) handleRentalActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, rpcErr := decodeAddressParam(req, 0, "owner")
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, s.node.ActiveRental(owner))
}

func (s *Server) handleDeriveAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, rpcErr := decodeAddressParam(req, 0, "owner")
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	ref, err := s.node.DeriveRecord(owner)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, DeriveResult{
		Owner:   crypto.FormatAddress(owner),
		Address: crypto.FormatAddress(ref.Address),
		Bump:    ref.Bump,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := decodeAddressParam(req, 0, "address")
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	account, err := s.node.GetAccount(addr[:])
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult(addr, account))
}

func (s *Server) handleAssetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := decodeAddressParam(req, 0, "address")
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	account, ok, err := s.node.AssetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load asset account", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeRecordNotFound, "asset account not found", nil)
		return
	}
	writeResult(w, req.ID, AssetAccountResult{
		Address: crypto.FormatAddress(addr),
		Mint:    "0x" + hex.EncodeToString(account.Mint[:]),
		Owner:   crypto.FormatAddress(account.Owner),
		Amount:  account.Amount,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event journal disabled", nil)
		return
	}
	var params struct {
		Record     string `json:"record"`
		Owner      string `json:"owner"`
		Type       string `json:"type"`
		FromHeight uint64 `json:"fromHeight"`
		Limit      int    `json:"limit"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
			return
		}
	}
	entries, err := s.events.Query(r.Context(), indexer.Filter{
		Record:     params.Record,
		Owner:      params.Owner,
		Type:       params.Type,
		FromHeight: params.FromHeight,
		Limit:      params.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to query events", err.Error())
		return
	}
	if entries == nil {
		entries = []indexer.Entry{}
	}
	writeResult(w, req.ID, entries)
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	result := HeightResult{Ledger: s.node.Height()}
	if s.events != nil {
		journaled, err := s.events.LatestHeight(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "journal height unavailable", err.Error())
			return
		}
		result.Journal = &journaled
	}
	writeResult(w, req.ID, result)
}
