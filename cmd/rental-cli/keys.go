package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rentescrow/cmd/internal/passphrase"
	"rentescrow/crypto"
	"rentescrow/rpc"
)

const keystorePassEnv = "RENTAL_KEYSTORE_PASS"

var keyPassphrase = passphrase.NewSource(keystorePassEnv, "wallet keystore").Get

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "wallet.key", "destination file")
	encrypted := fs.Bool("keystore", false, "write an encrypted keystore instead of a raw key")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists; refusing to overwrite", *out))
	}

	var key *crypto.PrivateKey
	if *encrypted {
		pass, err := keyPassphrase()
		if err != nil {
			return printError(stderr, err.Error())
		}
		key, err = crypto.CreateKeystore(*out, pass)
		if err != nil {
			return printError(stderr, fmt.Sprintf("create keystore: %v", err))
		}
	} else {
		var err error
		key, err = crypto.GeneratePrivateKey()
		if err != nil {
			return printError(stderr, err.Error())
		}
		if err := os.WriteFile(*out, key.Bytes(), 0o600); err != nil {
			return printError(stderr, fmt.Sprintf("save key to %s: %v", *out, err))
		}
	}
	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", *out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "wallet.key", "key file or keystore")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

// runToken mints an HS256 bearer token from a secret held in the environment,
// matching what the node verifies for mutating methods.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	secretEnv := fs.String("secret-env", "RENTAL_RPC_JWT_SECRET", "environment variable holding the HMAC secret")
	issuer := fs.String("issuer", "rentald", "token issuer")
	subject := fs.String("subject", "rental-cli", "token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return printError(stderr, fmt.Sprintf("%s is not set", *secretEnv))
	}
	token, err := rpc.IssueToken([]byte(secret), *issuer, *subject, *ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

// loadSigner reads either an encrypted JSON keystore or a raw 32-byte key.
func loadSigner(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key file %s not found. run rental-cli keygen first", path)
		}
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("key file %s is empty", path)
	}
	if trimmed[0] == '{' && json.Valid(trimmed) {
		pass, err := keyPassphrase()
		if err != nil {
			return nil, err
		}
		key, err := crypto.LoadFromKeystore(path, pass)
		if err != nil {
			return nil, fmt.Errorf("unable to decrypt keystore %s: %w", path, err)
		}
		return key, nil
	}
	if len(raw) != 32 {
		// hex encoded keys are accepted for convenience
		decoded, err := hex.DecodeString(strings.TrimPrefix(string(trimmed), "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse key in %s: unrecognised format", path)
		}
		raw = decoded
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key in %s: %w", path, err)
	}
	return key, nil
}
