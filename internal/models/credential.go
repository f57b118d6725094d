package models

import "time"

// Credential is the at-rest form of a user's provider secret.
// SecretCiphertext is the base64 AES-GCM output of the vault; the plaintext
// never appears in this struct.
type Credential struct {
	UserID           string    `json:"user_id"`
	ProviderID       string    `json:"provider_id"`
	SecretCiphertext string    `json:"secret_ciphertext"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CredentialStatus is what callers may learn about a stored credential.
type CredentialStatus struct {
	UserID     string    `json:"user_id"`
	ProviderID string    `json:"provider_id"`
	Configured bool      `json:"configured"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}
