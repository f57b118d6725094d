package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Entry is one stored record together with its key.
type Entry struct {
	Key    string
	Record []byte
}

// Predicate selects records during Query. A nil predicate selects everything.
type Predicate func(key string, record []byte) bool

// RecordStore is a generic table/key/record store. Records are opaque JSON
// documents; the store never interprets them.
type RecordStore interface {
	// Upsert inserts or replaces the record stored under table/key
	Upsert(ctx context.Context, table, key string, record []byte) error

	// Get returns the record stored under table/key or ErrRecordNotFound
	Get(ctx context.Context, table, key string) ([]byte, error)

	// Delete removes table/key. Deleting a missing record is not an error.
	Delete(ctx context.Context, table, key string) error

	// Query returns the records of table matching the predicate, ordered by key
	Query(ctx context.Context, table string, match Predicate) ([]Entry, error)

	// Close releases the underlying resources
	Close() error
}

// CounterStore holds named integer counters with atomic increments.
type CounterStore interface {
	// Increment adds delta to table/key (creating it at 0) and returns the new value
	Increment(ctx context.Context, table, key string, delta int64) (int64, error)

	// Count returns the current value of table/key, 0 if absent
	Count(ctx context.Context, table, key string) (int64, error)
}

// Store is what the backends in this package implement.
type Store interface {
	RecordStore
	CounterStore
	Ping(ctx context.Context) error
}

// BatchUpserter is implemented by stores that can write many records in one
// transaction.
type BatchUpserter interface {
	UpsertBatch(ctx context.Context, table string, entries []Entry) error
}

func validateTable(table string) error {
	if table == "" || strings.ContainsAny(table, " \t\n;'\"") {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

// PutJSON marshals v and upserts it under table/key.
func PutJSON(ctx context.Context, s RecordStore, table, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}
	return s.Upsert(ctx, table, key, data)
}

// GetJSON loads table/key and unmarshals it into a T.
func GetJSON[T any](ctx context.Context, s RecordStore, table, key string) (T, error) {
	var out T
	data, err := s.Get(ctx, table, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal %s record %q: %w", table, key, err)
	}
	return out, nil
}

// QueryJSON decodes every record of table accepted by match.
// Records that fail to decode are reported as an error.
func QueryJSON[T any](ctx context.Context, s RecordStore, table string, match func(T) bool) ([]T, error) {
	entries, err := s.Query(ctx, table, nil)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Record, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s record %q: %w", table, e.Key, err)
		}
		if match == nil || match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
