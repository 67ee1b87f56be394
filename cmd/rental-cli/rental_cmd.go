package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"rentescrow/core/types"
	"rentescrow/crypto"
)

var cliNow = time.Now

type deriveResult struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

type recordResult struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
	Custody string `json:"custody"`
}

func runDerive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("derive", stderr)
	owner := fs.String("owner", "", "owner address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*owner) == "" {
		return printError(stderr, "--owner is required")
	}
	return query(stdout, stderr, "rental_deriveAddress", false, strings.TrimSpace(*owner))
}

func runInitialize(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("initialize", stderr)
	keyPath := fs.String("key", "wallet.key", "owner key file or keystore")
	asset := fs.String("asset", "", "owner asset account holding the unit to list")
	priceStr := fs.String("price", "", "rental price in native units")
	expires := fs.String("expires", "", "expiry as +duration (e.g. +72h, +3d) or RFC3339 timestamp")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*asset) == "" {
		return printError(stderr, "--asset is required")
	}
	price, err := strconv.ParseUint(strings.TrimSpace(*priceStr), 10, 64)
	if err != nil || price == 0 {
		return printError(stderr, "--price must be a positive integer")
	}
	expiration, err := parseExpiration(*expires, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	owner := key.PubKey().Address().String()

	var derived deriveResult
	if code := fetch(stderr, "rental_deriveAddress", &derived, owner); code != 0 {
		return code
	}
	payload := types.RentalInitializePayload{
		Record:     derived.Address,
		Bump:       derived.Bump,
		OwnerAsset: strings.TrimSpace(*asset),
		Price:      price,
		Expiration: expiration,
	}
	return submit(stdout, stderr, "rental_initialize", key, types.TxTypeRentalInitialize, payload, nil, nil)
}

func runBorrow(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("borrow", stderr)
	keyPath := fs.String("key", "wallet.key", "renter key file or keystore")
	owner := fs.String("owner", "", "owner of the listing")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*owner) == "" {
		return printError(stderr, "--owner is required")
	}
	key, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	var derived deriveResult
	if code := fetch(stderr, "rental_deriveAddress", &derived, strings.TrimSpace(*owner)); code != 0 {
		return code
	}
	payload := types.RentalBorrowPayload{Record: derived.Address, Bump: derived.Bump}
	return submit(stdout, stderr, "rental_borrow", key, types.TxTypeRentalBorrow, payload, nil, nil)
}

func runWithdraw(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("withdraw", stderr)
	keyPath := fs.String("key", "wallet.key", "owner key file or keystore")
	asset := fs.String("asset", "", "owner asset account receiving the unit")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*asset) == "" {
		return printError(stderr, "--asset is required")
	}
	key, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	var record recordResult
	owner := key.PubKey().Address().String()
	if code := fetch(stderr, "rental_get", &record, map[string]string{"owner": owner}); code != 0 {
		return code
	}
	payload := types.RentalWithdrawPayload{
		Record:     record.Address,
		Bump:       record.Bump,
		Custody:    record.Custody,
		OwnerAsset: strings.TrimSpace(*asset),
	}
	return submit(stdout, stderr, "rental_withdraw", key, types.TxTypeRentalWithdraw, payload, nil, nil)
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	owner := fs.String("owner", "", "owner address")
	record := fs.String("record", "", "record address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	o, r := strings.TrimSpace(*owner), strings.TrimSpace(*record)
	if (o == "") == (r == "") {
		return printError(stderr, "exactly one of --owner or --record is required")
	}
	params := map[string]string{}
	if o != "" {
		params["owner"] = o
	} else {
		params["record"] = r
	}
	return query(stdout, stderr, "rental_get", false, params)
}

func runActive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("active", stderr)
	owner := fs.String("owner", "", "owner address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*owner) == "" {
		return printError(stderr, "--owner is required")
	}
	return query(stdout, stderr, "rental_active", false, strings.TrimSpace(*owner))
}

// fetch decodes the result of a read call into out.
func fetch(stderr io.Writer, method string, out interface{}, params ...interface{}) int {
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return printError(stderr, fmt.Sprintf("decode %s result: %v", method, err))
	}
	return 0
}

// submit signs a transaction at the signer's next nonce and sends it through
// method.
func submit(stdout, stderr io.Writer, method string, key *crypto.PrivateKey, txType types.TxType, payload interface{}, to []byte, value *big.Int) int {
	var account struct {
		Nonce uint64 `json:"nonce"`
	}
	if code := fetch(stderr, "rental_balance", &account, key.PubKey().Address().String()); code != 0 {
		return code
	}
	tx := &types.Transaction{Type: txType, Nonce: account.Nonce, To: to, Value: value}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return printError(stderr, err.Error())
		}
		tx.Data = data
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return printError(stderr, fmt.Sprintf("sign transaction: %v", err))
	}
	return query(stdout, stderr, method, true, tx)
}

func parseExpiration(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("--expires is required")
	}
	if strings.HasPrefix(trimmed, "+") {
		dur, err := parseDuration(strings.TrimSpace(trimmed[1:]))
		if err != nil {
			return 0, err
		}
		if dur <= 0 {
			return 0, fmt.Errorf("expiry duration must be positive")
		}
		return now.Add(dur).Unix(), nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid RFC3339 expiry")
	}
	if !ts.After(now) {
		return 0, fmt.Errorf("expiry must be in the future")
	}
	return ts.Unix(), nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("invalid expiry duration")
	}
	if strings.HasSuffix(value, "d") || strings.HasSuffix(value, "D") {
		days, err := strconv.ParseFloat(value[:len(value)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid expiry duration")
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry duration")
	}
	return dur, nil
}
