package main

import (
	"io"
	"math/big"
	"strings"

	"rentescrow/core/types"
	"rentescrow/crypto"
)

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	keyPath := fs.String("key", "wallet.key", "creator key file or keystore")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(stdout, stderr, "rental_mintAsset", key, types.TxTypeAssetMint, nil, nil, nil)
}

func runTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr)
	keyPath := fs.String("key", "wallet.key", "sender key file or keystore")
	to := fs.String("to", "", "recipient address")
	amountStr := fs.String("amount", "", "amount in native units")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	recipient, err := crypto.ParseAddress(strings.TrimSpace(*to))
	if err != nil {
		return printError(stderr, "--to must be a valid address")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(*amountStr), 10)
	if !ok || amount.Sign() <= 0 {
		return printError(stderr, "--amount must be a positive integer")
	}
	key, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(stdout, stderr, "rental_transfer", key, types.TxTypeTransfer, nil, recipient[:], amount)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	addr := fs.String("address", "", "account address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*addr) == "" {
		return printError(stderr, "--address is required")
	}
	return query(stdout, stderr, "rental_balance", false, strings.TrimSpace(*addr))
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	record := fs.String("record", "", "filter by record address")
	owner := fs.String("owner", "", "filter by owner address")
	eventType := fs.String("type", "", "filter by event type, e.g. rental.borrowed")
	from := fs.Uint64("from-height", 0, "only events at or after this height")
	limit := fs.Int("limit", 0, "maximum number of entries")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	params := map[string]interface{}{}
	if v := strings.TrimSpace(*record); v != "" {
		params["record"] = v
	}
	if v := strings.TrimSpace(*owner); v != "" {
		params["owner"] = v
	}
	if v := strings.TrimSpace(*eventType); v != "" {
		params["type"] = v
	}
	if *from > 0 {
		params["fromHeight"] = *from
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	return query(stdout, stderr, "rental_events", false, params)
}
