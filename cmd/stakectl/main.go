package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stakepool/cmd/internal/passphrase"
	"stakepool/crypto"
	"stakepool/rpc/middleware"
	"stakepool/storage/receipts"
)

const (
	defaultEndpoint = "http://127.0.0.1:8080"
	endpointEnv     = "STAKEPOOL_ENDPOINT"
	tokenEnv        = "STAKEPOOL_TOKEN"
	secretEnv       = "STAKEPOOL_JWT_SECRET"
	keystorePassEnv = "STAKECTL_KEYSTORE_PASS"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(args)
	case "address":
		err = runAddress(args)
	case "token":
		err = runToken(args)
	case "export-receipts":
		err = runExport(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		err = runPoolCommand(os.Args[1], args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: stakectl <command> [flags] [args]

Keys and credentials:
  keygen -keystore PATH                 create an encrypted account keystore
  address -keystore PATH                print the account stored in a keystore
  token (-subject ADDR | -keystore PATH) [-ttl 1h] [-issuer I] [-audience A]
                                        sign a caller token (secret from $STAKEPOOL_JWT_SECRET or prompt)

Pool calls (flags: -endpoint, -token; defaults from $STAKEPOOL_ENDPOINT, $STAKEPOOL_TOKEN):
  deposite AMOUNT | withdraw AMOUNT | reward AMOUNT
  register-mods ADDR... | remove-mods ADDR... | transfer-ownership ADDR
  approve SYMBOL SPENDER AMOUNT | transfer SYMBOL TO AMOUNT | mint SYMBOL TO AMOUNT
  pool | window | tokens | pending ADDR | account ADDR | balance SYMBOL ADDR | receipts

Journal:
  export-receipts -dsn DSN -out FILE.parquet [-operation OP] [-caller ADDR]`)
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	keystorePath := fs.String("keystore", "account.keystore", "Output path for the keystore file")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	_ = fs.Parse(args)

	if _, err := os.Stat(*keystorePath); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists (use -force to overwrite)", *keystorePath)
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address().String())
	return nil
}

func runAddress(args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	keystorePath := fs.String("keystore", "account.keystore", "Path to the keystore file")
	_ = fs.Parse(args)

	addr, err := crypto.KeystoreAddress(*keystorePath)
	if err != nil {
		return err
	}
	fmt.Println(addr.String())
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Account the token authenticates as")
	keystorePath := fs.String("keystore", "", "Derive the subject from a keystore instead of -subject")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	issuer := fs.String("issuer", "stakectl", "Token issuer claim")
	audience := fs.String("audience", "stakepool", "Token audience claim")
	_ = fs.Parse(args)

	sub := strings.TrimSpace(*subject)
	if sub == "" && *keystorePath != "" {
		addr, err := crypto.KeystoreAddress(*keystorePath)
		if err != nil {
			return err
		}
		sub = addr.String()
	}
	if sub == "" {
		return fmt.Errorf("-subject or -keystore is required")
	}
	if _, err := crypto.DecodeAddress(sub); err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}
	secret, err := passphrase.NewSource(secretEnv, "JWT secret").Get()
	if err != nil {
		return err
	}
	token, err := middleware.IssueToken(secret, sub, *issuer, *audience, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export-receipts", flag.ExitOnError)
	dsn := fs.String("dsn", "", "Receipts database DSN (sqlite path or postgres:// URL)")
	out := fs.String("out", "receipts.parquet", "Output parquet file")
	operation := fs.String("operation", "", "Only export this operation")
	caller := fs.String("caller", "", "Only export calls made by this account")
	since := fs.String("since", "", "Only export receipts created at or after this RFC3339 time")
	limit := fs.Int("limit", 100000, "Maximum number of receipts to export")
	_ = fs.Parse(args)

	if strings.TrimSpace(*dsn) == "" {
		return fmt.Errorf("-dsn is required")
	}
	filter := receipts.Filter{Operation: *operation, Caller: *caller, Limit: *limit}
	if strings.TrimSpace(*since) != "" {
		ts, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("invalid -since: %w", err)
		}
		filter.Since = ts
	}
	store, err := receipts.Open(*dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	n, err := store.Export(context.Background(), *out, filter)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d receipts to %s\n", n, *out)
	return nil
}
