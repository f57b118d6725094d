package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
	"listing_enricher/internal/storage"
)

// stubValidator knows openai and google; openai keys need an sk- prefix.
type stubValidator struct{}

func (stubValidator) Known(provider string) bool {
	return provider == "openai" || provider == "google"
}

func (stubValidator) ValidateKeyFormat(provider, candidate string) bool {
	switch provider {
	case "openai":
		return strings.HasPrefix(candidate, "sk-") && len(candidate) > 20
	case "google":
		return len(candidate) > 20
	}
	return false
}

const openaiKey = "sk-abcdefghijklmnopqrstuvwxy"

func newTestVault(t *testing.T) (*Vault, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	v, err := Open(NewMemoryKeySource(nil), store, stubValidator{})
	require.NoError(t, err)
	return v, store
}

func TestVault_StoreRetrieveRoundTrip(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "alice", "openai", openaiKey))

	secret, err := v.Retrieve(ctx, "alice", "openai")
	require.NoError(t, err)
	assert.Equal(t, openaiKey, secret)

	// The plaintext never reaches the store.
	raw, err := store.Get(ctx, CredentialsTable, "alice:openai")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), openaiKey)
}

func TestVault_OverwriteKeepsCreatedAt(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return first }
	require.NoError(t, v.Store(ctx, "alice", "openai", openaiKey))

	second := first.Add(3 * time.Hour)
	v.now = func() time.Time { return second }
	replacement := "sk-zyxwvutsrqponmlkjihgfedcba"
	require.NoError(t, v.Store(ctx, "alice", "openai", replacement))

	secret, err := v.Retrieve(ctx, "alice", "openai")
	require.NoError(t, err)
	assert.Equal(t, replacement, secret)

	entries, err := store.Query(ctx, CredentialsTable, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "overwrite must not append")

	status, err := v.Status(ctx, "alice", "openai")
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, first, status.CreatedAt)
	assert.Equal(t, second, status.UpdatedAt)
}

func TestVault_StoreRejections(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		user     string
		provider string
		secret   string
		kind     apperr.Kind
	}{
		{"unknown provider", "alice", "nope", openaiKey, apperr.KindUnknownProvider},
		{"empty secret", "alice", "openai", "", apperr.KindCredentialFormat},
		{"blank secret", "alice", "openai", "   ", apperr.KindCredentialFormat},
		{"bad format", "alice", "openai", "short", apperr.KindCredentialFormat},
		{"missing user", "", "openai", openaiKey, apperr.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Store(ctx, tt.user, tt.provider, tt.secret)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	status, err := v.Status(ctx, "alice", "openai")
	require.NoError(t, err)
	assert.False(t, status.Configured)
}

func TestVault_RetrieveMissing(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Retrieve(context.Background(), "alice", "openai")
	assert.ErrorIs(t, err, apperr.ErrCredentialMissing)
}

func TestVault_KeyChangeSurfacesDecryptionError(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	v1, err := Open(NewMemoryKeySource(nil), store, stubValidator{})
	require.NoError(t, err)
	require.NoError(t, v1.Store(ctx, "alice", "openai", openaiKey))

	v2, err := Open(NewMemoryKeySource(nil), store, stubValidator{})
	require.NoError(t, err)
	assert.NotEqual(t, v1.Fingerprint(), v2.Fingerprint())

	_, err = v2.Retrieve(ctx, "alice", "openai")
	assert.ErrorIs(t, err, apperr.ErrDecryption)
}

func TestVault_CorruptCiphertext(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, storage.PutJSON(ctx, store, CredentialsTable, "alice:openai", models.Credential{
		UserID:           "alice",
		ProviderID:       "openai",
		SecretCiphertext: "not-a-ciphertext",
	}))

	_, err := v.Retrieve(ctx, "alice", "openai")
	assert.ErrorIs(t, err, apperr.ErrDecryption)
}

func TestVault_CiphertextBoundToRecord(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "alice", "openai", openaiKey))
	raw, err := store.Get(ctx, CredentialsTable, "alice:openai")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, CredentialsTable, "mallory:openai", raw))

	_, err = v.Retrieve(ctx, "mallory", "openai")
	assert.ErrorIs(t, err, apperr.ErrDecryption)
}

func TestVault_DeleteAndDeleteUser(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "alice", "openai", openaiKey))
	require.NoError(t, v.Store(ctx, "alice", "google", "AIzaSyA-1234567890abcdefgh"))
	require.NoError(t, v.Store(ctx, "bob", "openai", openaiKey))

	require.NoError(t, v.Delete(ctx, "alice", "google"))
	assert.ErrorIs(t, v.Delete(ctx, "alice", "google"), apperr.ErrCredentialMissing)

	n, err := v.DeleteUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = v.Retrieve(ctx, "alice", "openai")
	assert.ErrorIs(t, err, apperr.ErrCredentialMissing)

	secret, err := v.Retrieve(ctx, "bob", "openai")
	require.NoError(t, err)
	assert.Equal(t, openaiKey, secret)
}

func TestOpen_PersistsGeneratedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "vault.key")
	store := storage.NewMemoryStore()
	ctx := context.Background()

	v1, err := Open(NewFileKeySource(path), store, stubValidator{})
	require.NoError(t, err)
	require.NoError(t, v1.Store(ctx, "alice", "openai", openaiKey))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	// A second process reading the same key file decrypts the same secrets.
	v2, err := Open(NewFileKeySource(path), store, stubValidator{})
	require.NoError(t, err)
	assert.Equal(t, v1.Fingerprint(), v2.Fingerprint())

	secret, err := v2.Retrieve(ctx, "alice", "openai")
	require.NoError(t, err)
	assert.Equal(t, openaiKey, secret)
}

func TestOpen_FailsWhenKeyCannotBePersisted(t *testing.T) {
	src := NewMemoryKeySource(nil)
	src.WriteErr = errors.New("read-only secret store")

	v, err := Open(src, storage.NewMemoryStore(), stubValidator{})
	assert.Nil(t, v)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestOpen_RejectsShortKeyMaterial(t *testing.T) {
	_, err := Open(NewMemoryKeySource([]byte("tiny")), storage.NewMemoryStore(), stubValidator{})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestFileKeySource_ReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileKeySource(filepath.Join(dir, "absent.key")).ReadKeyMaterial()
	assert.ErrorIs(t, err, ErrKeyMaterialNotFound)

	bad := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("%%% not base64"), 0o600))
	_, err = NewFileKeySource(bad).ReadKeyMaterial()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyMaterialNotFound)
}
