package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records and counters in process memory. Nothing survives
// a restart; use it for tests and single-process development.
type MemoryStore struct {
	mu       sync.RWMutex
	tables   map[string]map[string][]byte
	counters map[string]map[string]int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   make(map[string]map[string][]byte),
		counters: make(map[string]map[string]int64),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, table, key string, record []byte) error {
	if err := validateTable(table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		t = make(map[string][]byte)
		s.tables[table] = t
	}
	t[key] = append([]byte(nil), record...)
	return nil
}

// UpsertBatch writes all entries under one lock
func (s *MemoryStore) UpsertBatch(ctx context.Context, table string, entries []Entry) error {
	if err := validateTable(table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		t = make(map[string][]byte)
		s.tables[table] = t
	}
	for _, e := range entries {
		t[e.Key] = append([]byte(nil), e.Record...)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[table][key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return append([]byte(nil), rec...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables[table], key)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, table string, match Predicate) ([]Entry, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[table]
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		rec := t[k]
		if match != nil && !match(k, rec) {
			continue
		}
		out = append(out, Entry{Key: k, Record: append([]byte(nil), rec...)})
	}
	return out, nil
}

func (s *MemoryStore) Increment(ctx context.Context, table, key string, delta int64) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.counters[table]
	if !ok {
		t = make(map[string]int64)
		s.counters[table] = t
	}
	t[key] += delta
	return t[key], nil
}

func (s *MemoryStore) Count(ctx context.Context, table, key string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.counters[table][key], nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
