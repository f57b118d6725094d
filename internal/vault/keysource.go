package vault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrKeyMaterialNotFound is returned by a KeySource that holds no key yet
var ErrKeyMaterialNotFound = errors.New("key material not found")

// KeySource is where the vault's master key material lives
type KeySource interface {
	// ReadKeyMaterial returns the stored material or ErrKeyMaterialNotFound
	ReadKeyMaterial() ([]byte, error)

	// WriteKeyMaterial persists material, replacing any previous value
	WriteKeyMaterial(material []byte) error
}

// FileKeySource keeps the key base64 encoded in a single file readable only
// by the owner
type FileKeySource struct {
	Path string
}

// NewFileKeySource returns a KeySource backed by path
func NewFileKeySource(path string) *FileKeySource {
	return &FileKeySource{Path: path}
}

func (f *FileKeySource) ReadKeyMaterial() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyMaterialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	encoded := strings.TrimSpace(string(data))
	if encoded == "" {
		return nil, ErrKeyMaterialNotFound
	}

	material, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	return material, nil
}

// WriteKeyMaterial writes to a temp file in the same directory and renames
// it over the target, so a crash never leaves a truncated key behind.
func (f *FileKeySource) WriteKeyMaterial(material []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vault-key-*")
	if err != nil {
		return fmt.Errorf("failed to create temp key file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := tmp.WriteString(base64.StdEncoding.EncodeToString(material) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}

	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("failed to install key file: %w", err)
	}
	return nil
}

// MemoryKeySource holds key material in memory. Tests use it, and so can
// callers that inject the key from a secret manager.
type MemoryKeySource struct {
	mu       sync.Mutex
	material []byte
	// WriteErr, when set, is returned by WriteKeyMaterial
	WriteErr error
}

// NewMemoryKeySource returns a source preloaded with material (nil for empty)
func NewMemoryKeySource(material []byte) *MemoryKeySource {
	return &MemoryKeySource{material: append([]byte(nil), material...)}
}

func (m *MemoryKeySource) ReadKeyMaterial() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.material) == 0 {
		return nil, ErrKeyMaterialNotFound
	}
	return append([]byte(nil), m.material...), nil
}

func (m *MemoryKeySource) WriteKeyMaterial(material []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.material = append([]byte(nil), material...)
	return nil
}
