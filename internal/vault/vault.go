// Package vault stores per-user AI provider credentials encrypted at rest.
//
// One master key is read (or generated on first run) from a KeySource when
// the vault opens; the AES-256-GCM data key is derived from it with
// HKDF-SHA256 and never changes for the life of the process. Each ciphertext
// is bound to its "user:provider" record key, so a ciphertext copied onto
// another record does not decrypt.
package vault

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
	"listing_enricher/internal/storage"
	"listing_enricher/internal/utils"
)

const (
	// CredentialsTable is the record-store table holding credentials
	CredentialsTable = "credentials"

	keyMaterialSize = 32
	hkdfInfo        = "credential-vault/aes-256-gcm"
)

// FormatValidator decides which providers exist and which secrets look
// plausible for them. The provider registry implements it.
type FormatValidator interface {
	Known(provider string) bool
	ValidateKeyFormat(provider, candidate string) bool
}

// Vault encrypts, stores and decrypts provider credentials
type Vault struct {
	cipher      *Cipher
	store       storage.RecordStore
	validator   FormatValidator
	fingerprint string
	logger      *utils.Logger
	now         func() time.Time
}

// Open loads the master key from src, generating and persisting one when the
// source is empty. A vault is never returned without a usable key.
func Open(src KeySource, store storage.RecordStore, validator FormatValidator) (*Vault, error) {
	if src == nil || store == nil || validator == nil {
		return nil, apperr.Configuration("vault requires a key source, a record store and a validator", nil)
	}

	logger := utils.NewLogger("vault")

	material, err := src.ReadKeyMaterial()
	switch {
	case errors.Is(err, ErrKeyMaterialNotFound):
		material, err = generateKey(keyMaterialSize)
		if err != nil {
			return nil, apperr.Configuration("failed to generate vault key", err)
		}
		if err := src.WriteKeyMaterial(material); err != nil {
			return nil, apperr.Configuration("failed to persist generated vault key", err)
		}
		logger.Warn("Generated new vault key; previously stored credentials are unreadable")
	case err != nil:
		return nil, apperr.Configuration("failed to read vault key", err)
	case len(material) < 16:
		return nil, apperr.Configuration(fmt.Sprintf("vault key material too short: %d bytes", len(material)), nil)
	}

	dataKey, err := deriveKey(material)
	if err != nil {
		return nil, apperr.Configuration("failed to derive vault key", err)
	}

	c, err := NewCipher(dataKey)
	if err != nil {
		return nil, apperr.Configuration("failed to initialize vault cipher", err)
	}

	v := &Vault{
		cipher:      c,
		store:       store,
		validator:   validator,
		fingerprint: utils.ShortHash(dataKey, 12),
		logger:      logger,
		now:         time.Now,
	}
	logger.Info("Vault opened", "key_fingerprint", v.fingerprint)
	return v, nil
}

func deriveKey(material []byte) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, material, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Fingerprint identifies the active key in logs without revealing it
func (v *Vault) Fingerprint() string {
	return v.fingerprint
}

func recordKey(userID, provider string) string {
	return userID + ":" + provider
}

// Store encrypts secret and saves it for (userID, provider), replacing any
// previous secret while keeping the original creation time.
func (v *Vault) Store(ctx context.Context, userID, provider, secret string) error {
	if userID == "" {
		return apperr.InvalidRequest("user id is required")
	}
	if !v.validator.Known(provider) {
		return apperr.UnknownProvider(provider)
	}
	if strings.TrimSpace(secret) == "" {
		return apperr.CredentialFormat(provider, "secret is empty")
	}
	if !v.validator.ValidateKeyFormat(provider, secret) {
		return apperr.CredentialFormat(provider, "secret does not match the provider's key format")
	}

	key := recordKey(userID, provider)
	ciphertext, err := v.cipher.Seal([]byte(secret), []byte(key))
	if err != nil {
		return apperr.Storage("credential encryption", err)
	}

	now := v.now().UTC()
	record := models.Credential{
		UserID:           userID,
		ProviderID:       provider,
		SecretCiphertext: ciphertext,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	existing, err := storage.GetJSON[models.Credential](ctx, v.store, CredentialsTable, key)
	switch {
	case err == nil:
		record.CreatedAt = existing.CreatedAt
	case !errors.Is(err, storage.ErrRecordNotFound):
		return apperr.Storage("credential lookup", err)
	}

	if err := storage.PutJSON(ctx, v.store, CredentialsTable, key, record); err != nil {
		return apperr.Storage("credential write", err)
	}

	v.logger.Info("Credential stored", "user_id", userID, "provider", provider)
	return nil
}

// Retrieve returns the plaintext secret. It is only ever held in memory.
func (v *Vault) Retrieve(ctx context.Context, userID, provider string) (string, error) {
	key := recordKey(userID, provider)

	record, err := storage.GetJSON[models.Credential](ctx, v.store, CredentialsTable, key)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return "", apperr.CredentialMissing(userID, provider)
	}
	if err != nil {
		return "", apperr.Storage("credential lookup", err)
	}

	plaintext, err := v.cipher.Open(record.SecretCiphertext, []byte(key))
	if err != nil {
		v.logger.Warn("Credential decryption failed", "user_id", userID, "provider", provider, "key_fingerprint", v.fingerprint)
		return "", apperr.Decryption(provider, err)
	}

	return string(plaintext), nil
}

// Status reports whether a credential is configured and when. Configured is
// false, with a nil error, when none exists.
func (v *Vault) Status(ctx context.Context, userID, provider string) (models.CredentialStatus, error) {
	status := models.CredentialStatus{UserID: userID, ProviderID: provider}

	record, err := storage.GetJSON[models.Credential](ctx, v.store, CredentialsTable, recordKey(userID, provider))
	if errors.Is(err, storage.ErrRecordNotFound) {
		return status, nil
	}
	if err != nil {
		return status, apperr.Storage("credential lookup", err)
	}

	status.Configured = true
	status.CreatedAt = record.CreatedAt
	status.UpdatedAt = record.UpdatedAt
	return status, nil
}

// Delete removes one credential
func (v *Vault) Delete(ctx context.Context, userID, provider string) error {
	key := recordKey(userID, provider)

	if _, err := v.store.Get(ctx, CredentialsTable, key); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return apperr.CredentialMissing(userID, provider)
		}
		return apperr.Storage("credential lookup", err)
	}

	if err := v.store.Delete(ctx, CredentialsTable, key); err != nil {
		return apperr.Storage("credential delete", err)
	}

	v.logger.Info("Credential deleted", "user_id", userID, "provider", provider)
	return nil
}

// DeleteUser removes every credential of userID and returns how many went
func (v *Vault) DeleteUser(ctx context.Context, userID string) (int, error) {
	owned, err := storage.QueryJSON(ctx, v.store, CredentialsTable, func(c models.Credential) bool {
		return c.UserID == userID
	})
	if err != nil {
		return 0, apperr.Storage("credential listing", err)
	}

	deleted := 0
	for _, c := range owned {
		if err := v.store.Delete(ctx, CredentialsTable, recordKey(c.UserID, c.ProviderID)); err != nil {
			return deleted, apperr.Storage("credential delete", err)
		}
		deleted++
	}

	if deleted > 0 {
		v.logger.Info("User credentials deleted", "user_id", userID, "count", deleted)
	}
	return deleted, nil
}
