package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the hex SHA-256 of b
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first n hex characters of the SHA-256 of b. It is
// meant for log-safe identifiers such as key fingerprints.
func ShortHash(b []byte, n int) string {
	h := HashBytes(b)
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
