package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rentescrow/core/types"
	"rentescrow/crypto"
	"rentescrow/indexer"
)

func signed(t *testing.T, k testKey, nonce uint64, txType types.TxType, payload interface{}) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{Type: txType, Nonce: nonce}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		tx.Data = data
	}
	require.NoError(t, tx.Sign(k.key.PrivateKey))
	return tx
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil, nil, ServerConfig{})
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, nil, nil, ServerConfig{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil, ServerConfig{})
	cases := []struct {
		body string
		code int
	}{
		{"", codeInvalidRequest},
		{"{", codeParseError},
		{`{"jsonrpc":"1.0","method":"rental_height","id":1}`, codeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1}`, codeInvalidRequest},
		{`{"jsonrpc":"2.0","method":"nhb_getBalance","id":1}`, codeMethodNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
		var resp RPCResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), tc.body)
		require.NotNil(t, resp.Error, tc.body)
		require.Equal(t, tc.code, resp.Error.Code, tc.body)
	}
}

func TestMutatingMethodsRequireToken(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	owner := newTestKey(t)
	srv := newTestServer(t, newTestNode(t, clock, owner), nil, ServerConfig{})
	tx := signed(t, owner, 0, types.TxTypeAssetMint, nil)

	rec, resp := call(t, srv, "", "rental_mintAsset", tx)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	forged, err := IssueToken([]byte("other-secret"), "rpc-tests", "tester", time.Minute)
	require.NoError(t, err)
	_, resp = call(t, srv, forged, "rental_mintAsset", tx)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	_, resp = call(t, srv, testToken(t), "rental_mintAsset", tx)
	require.Nil(t, resp.Error)
}

func TestRateLimitPerSource(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	owner := newTestKey(t)
	srv := newTestServer(t, newTestNode(t, clock, owner), nil, ServerConfig{RateLimitPerSec: 0.001, RateLimitBurst: 1})
	token := testToken(t)

	_, resp := call(t, srv, token, "rental_mintAsset", signed(t, owner, 0, types.TxTypeAssetMint, nil))
	require.Nil(t, resp.Error)
	rec, resp := call(t, srv, token, "rental_mintAsset", signed(t, owner, 1, types.TxTypeAssetMint, nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, codeRateLimited, resp.Error.Code)

	// reads are not throttled
	_, resp = call(t, srv, "", "rental_height")
	var heights HeightResult
	decodeResult(t, resp, &heights)
	require.Nil(t, heights.Journal)
}

func TestSubmitRejectsTypeMismatchAndDuplicates(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	owner := newTestKey(t)
	srv := newTestServer(t, newTestNode(t, clock, owner), nil, ServerConfig{})
	token := testToken(t)
	tx := signed(t, owner, 0, types.TxTypeAssetMint, nil)

	_, resp := call(t, srv, token, "rental_borrow", tx)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = call(t, srv, token, "rental_mintAsset", tx)
	require.Nil(t, resp.Error)
	rec, resp := call(t, srv, token, "rental_mintAsset", tx)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, codeDuplicateTx, resp.Error.Code)
}

func TestRentalFlowOverRPC(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	owner := newTestKey(t)
	renter := newTestKey(t)
	stranger := newTestKey(t)
	node := newTestNode(t, clock, owner, renter, stranger)
	journal, err := indexer.Open(":memory:", nil)
	require.NoError(t, err)
	defer journal.Close()
	node.Subscribe(journal)
	srv := newTestServer(t, node, journal, ServerConfig{})
	token := testToken(t)

	_, resp := call(t, srv, token, "rental_mintAsset", signed(t, owner, 0, types.TxTypeAssetMint, nil))
	var minted ReceiptResult
	decodeResult(t, resp, &minted)
	require.NotEmpty(t, minted.AssetAccount)
	require.EqualValues(t, 1, minted.Height)

	_, resp = call(t, srv, "", "rental_deriveAddress", crypto.FormatAddress(owner.addr))
	var derived DeriveResult
	decodeResult(t, resp, &derived)

	initPayload := types.RentalInitializePayload{
		Record:     derived.Address,
		Bump:       derived.Bump,
		OwnerAsset: minted.AssetAccount,
		Price:      40,
		Expiration: clock.now.Unix() + 3600,
	}
	_, resp = call(t, srv, token, "rental_initialize", signed(t, owner, 1, types.TxTypeRentalInitialize, initPayload))
	var listed ReceiptResult
	decodeResult(t, resp, &listed)
	require.NotNil(t, listed.Record)
	require.Equal(t, "escrowed", listed.Record.State)

	borrow := types.RentalBorrowPayload{Record: derived.Address, Bump: derived.Bump}
	_, resp = call(t, srv, token, "rental_borrow", signed(t, renter, 0, types.TxTypeRentalBorrow, borrow))
	require.Nil(t, resp.Error)

	_, resp = call(t, srv, "", "rental_active", crypto.FormatAddress(owner.addr))
	var active bool
	decodeResult(t, resp, &active)
	require.True(t, active)

	_, resp = call(t, srv, "", "rental_get", map[string]string{"record": derived.Address})
	var view RecordResult
	decodeResult(t, resp, &view)
	require.Equal(t, "rented", view.Phase)
	require.Equal(t, crypto.FormatAddress(renter.addr), view.Renter)

	// a second borrower is turned away with the listing conflict code
	rec, resp := call(t, srv, token, "rental_borrow", signed(t, stranger, 0, types.TxTypeRentalBorrow, borrow))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, codeListingConflict, resp.Error.Code)

	withdraw := types.RentalWithdrawPayload{
		Record:     derived.Address,
		Bump:       derived.Bump,
		Custody:    listed.Record.Custody,
		OwnerAsset: minted.AssetAccount,
	}
	_, resp = call(t, srv, token, "rental_withdraw", signed(t, stranger, 0, types.TxTypeRentalWithdraw, withdraw))
	require.Equal(t, codeNotOwner, resp.Error.Code)
	_, resp = call(t, srv, token, "rental_withdraw", signed(t, owner, 2, types.TxTypeRentalWithdraw, withdraw))
	require.Equal(t, codeNotExpired, resp.Error.Code)

	clock.now = clock.now.Add(2 * time.Hour)
	_, resp = call(t, srv, token, "rental_withdraw", signed(t, owner, 2, types.TxTypeRentalWithdraw, withdraw))
	var withdrawn ReceiptResult
	decodeResult(t, resp, &withdrawn)
	require.Equal(t, "0", withdrawn.Swept)

	_, resp = call(t, srv, "", "rental_balance", crypto.FormatAddress(owner.addr))
	var balance BalanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "1040", balance.Balance)
	require.EqualValues(t, 3, balance.Nonce)

	_, resp = call(t, srv, "", "rental_assetAccount", minted.AssetAccount)
	var asset AssetAccountResult
	decodeResult(t, resp, &asset)
	require.EqualValues(t, 1, asset.Amount)

	_, resp = call(t, srv, "", "rental_events", map[string]string{"record": derived.Address})
	var entries []indexer.Entry
	decodeResult(t, resp, &entries)
	kinds := make([]string, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Type)
	}
	require.Equal(t, []string{"rental.listed", "rental.borrowed", "rental.withdrawn"}, kinds)

	_, resp = call(t, srv, "", "rental_height")
	var heights HeightResult
	decodeResult(t, resp, &heights)
	require.NotNil(t, heights.Journal)
	require.Equal(t, heights.Ledger, *heights.Journal)

	rec, resp = call(t, srv, "", "rental_get", map[string]string{"owner": crypto.FormatAddress(owner.addr)})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeRecordNotFound, resp.Error.Code)
}

func TestUnsignedTransactionReportsNoSigner(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	owner := newTestKey(t)
	srv := newTestServer(t, newTestNode(t, clock, owner), nil, ServerConfig{})
	payload, err := json.Marshal(types.RentalBorrowPayload{Record: crypto.FormatAddress(owner.addr)})
	require.NoError(t, err)
	tx := &types.Transaction{Type: types.TxTypeRentalBorrow, Data: payload}
	_, resp := call(t, srv, testToken(t), "rental_borrow", tx)
	require.Equal(t, codeNoSigner, resp.Error.Code)
}

func TestEventsWithoutJournal(t *testing.T) {
	srv := newTestServer(t, nil, nil, ServerConfig{})
	rec, resp := call(t, srv, "", "rental_events")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, resp.Error)
}

func TestShutdownWithoutServe(t *testing.T) {
	srv := newTestServer(t, nil, nil, ServerConfig{})
	require.NoError(t, srv.Shutdown(context.Background()))
}
