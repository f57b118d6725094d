package storage

import "errors"

var (
	// ErrRecordNotFound is returned when no record exists for a table/key
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidTable is returned for empty or malformed table names
	ErrInvalidTable = errors.New("invalid table name")

	// ErrUnknownBackend is returned when the configured store backend is not supported
	ErrUnknownBackend = errors.New("unknown storage backend")
)
