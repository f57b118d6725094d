package main

import (
	"errors"
	"fmt"
	"os"

	"listing_enricher/internal/config"
	"listing_enricher/internal/providers"
	"listing_enricher/internal/storage"
	"listing_enricher/internal/vault"
)

// init-vault prepares a fresh deployment: it applies the store migrations and
// creates the vault key file when none exists. Running it again is a no-op.
func main() {
	fmt.Println("Listing Enricher - Vault Initialization")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	src := vault.NewFileKeySource(cfg.Vault.KeyFile)
	_, readErr := src.ReadKeyMaterial()
	existed := readErr == nil
	if readErr != nil && !errors.Is(readErr, vault.ErrKeyMaterialNotFound) {
		fmt.Fprintf(os.Stderr, "ERROR: Key file %s is unreadable: %v\n", cfg.Vault.KeyFile, readErr)
		os.Exit(1)
	}

	fmt.Printf("Opening %s store...\n", cfg.Store.Backend)
	store, err := storage.Open(cfg.Store.Backend, cfg.DBConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	fmt.Println("Store ready, migrations applied")

	registry := providers.NewRegistry(providers.Config{Overrides: cfg.Provider.Overrides})
	v, err := vault.Open(src, store, registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to open vault: %v\n", err)
		os.Exit(1)
	}

	if existed {
		fmt.Printf("INFO: Key file %s already exists. No action taken.\n", cfg.Vault.KeyFile)
	} else {
		fmt.Printf("SUCCESS: Generated new key file %s\n", cfg.Vault.KeyFile)
		fmt.Println("IMPORTANT: Back this file up. Credentials stored with it cannot be recovered without it.")
	}
	fmt.Printf("Key fingerprint: %s\n", v.Fingerprint())
}
