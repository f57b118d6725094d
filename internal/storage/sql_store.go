package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	upsertRecordQuery = `INSERT INTO records (table_name, record_key, record) VALUES (?, ?, ?)
ON CONFLICT (table_name, record_key) DO UPDATE SET record = excluded.record, updated_at = CURRENT_TIMESTAMP`
	getRecordQuery     = `SELECT record FROM records WHERE table_name = ? AND record_key = ?`
	deleteRecordQuery  = `DELETE FROM records WHERE table_name = ? AND record_key = ?`
	queryRecordsQuery  = `SELECT record_key, record FROM records WHERE table_name = ? ORDER BY record_key`
	incrementQuery     = `INSERT INTO counters (table_name, counter_key, value) VALUES (?, ?, ?)
ON CONFLICT (table_name, counter_key) DO UPDATE SET value = counters.value + excluded.value, updated_at = CURRENT_TIMESTAMP
RETURNING value`
	countQuery = `SELECT value FROM counters WHERE table_name = ? AND counter_key = ?`
)

type recordRow struct {
	Key    string `db:"record_key"`
	Record []byte `db:"record"`
}

// SQLStore implements Store on PostgreSQL or SQLite. Record reads go through
// a TTL LRU cache that is updated on every write made by this process, so
// another instance's writes show up only after the TTL. Uncached tables and
// counters always hit the database.
type SQLStore struct {
	db           *DB
	cache        *LRUCache[[]byte]
	uncached     map[string]bool
	queryTimeout time.Duration

	upsertQ, getQ, deleteQ, listQ, incrQ, countQ string
}

// OpenSQLStore connects, migrates and returns a ready store
func OpenSQLStore(cfg DBConfig) (*SQLStore, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewSQLStore(db, cfg), nil
}

// NewSQLStore wraps an already-migrated database
func NewSQLStore(db *DB, cfg DBConfig) *SQLStore {
	conn := db.Conn()
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	uncached := make(map[string]bool, len(cfg.UncachedTables))
	for _, t := range cfg.UncachedTables {
		uncached[t] = true
	}

	return &SQLStore{
		db:           db,
		cache:        NewLRUCache[[]byte](cfg.CacheSize, cfg.CacheTTL),
		uncached:     uncached,
		queryTimeout: timeout,
		upsertQ:      conn.Rebind(upsertRecordQuery),
		getQ:         conn.Rebind(getRecordQuery),
		deleteQ:      conn.Rebind(deleteRecordQuery),
		listQ:        conn.Rebind(queryRecordsQuery),
		incrQ:        conn.Rebind(incrementQuery),
		countQ:       conn.Rebind(countQuery),
	}
}

func cacheKey(table, key string) string {
	return table + "\x00" + key
}

func (s *SQLStore) cacheSet(table, key string, record []byte) {
	if !s.uncached[table] {
		s.cache.Set(cacheKey(table, key), append([]byte(nil), record...))
	}
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *SQLStore) Upsert(ctx context.Context, table, key string, record []byte) error {
	if err := validateTable(table); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// JSONB columns reject bytea parameters, so records travel as text.
	if _, err := s.db.Conn().ExecContext(ctx, s.upsertQ, table, key, string(record)); err != nil {
		s.cache.Delete(cacheKey(table, key))
		return fmt.Errorf("failed to upsert %s record: %w", table, err)
	}

	s.cacheSet(table, key, record)
	return nil
}

// UpsertBatch writes all entries in a single transaction
func (s *SQLStore) UpsertBatch(ctx context.Context, table string, entries []Entry) error {
	if err := validateTable(table); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, s.upsertQ, table, e.Key, string(e.Record)); err != nil {
			return fmt.Errorf("failed to upsert %s record %q: %w", table, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, e := range entries {
		s.cacheSet(table, e.Key, e.Record)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	if !s.uncached[table] {
		if rec, ok := s.cache.Get(cacheKey(table, key)); ok {
			return append([]byte(nil), rec...), nil
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec []byte
	err := s.db.Conn().GetContext(ctx, &rec, s.getQ, table, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record: %w", table, err)
	}

	s.cacheSet(table, key, rec)
	return append([]byte(nil), rec...), nil
}

func (s *SQLStore) Delete(ctx context.Context, table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.cache.Delete(cacheKey(table, key))
	if _, err := s.db.Conn().ExecContext(ctx, s.deleteQ, table, key); err != nil {
		return fmt.Errorf("failed to delete %s record: %w", table, err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, table string, match Predicate) ([]Entry, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []recordRow
	if err := s.db.Conn().SelectContext(ctx, &rows, s.listQ, table); err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", table, err)
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		if match != nil && !match(r.Key, r.Record) {
			continue
		}
		out = append(out, Entry{Key: r.Key, Record: r.Record})
	}
	return out, nil
}

func (s *SQLStore) Increment(ctx context.Context, table, key string, delta int64) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value int64
	if err := s.db.Conn().GetContext(ctx, &value, s.incrQ, table, key, delta); err != nil {
		return 0, fmt.Errorf("failed to increment %s counter: %w", table, err)
	}
	return value, nil
}

func (s *SQLStore) Count(ctx context.Context, table, key string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value int64
	err := s.db.Conn().GetContext(ctx, &value, s.countQ, table, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s counter: %w", table, err)
	}
	return value, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}

// CacheStats exposes the read cache statistics
func (s *SQLStore) CacheStats() CacheStats {
	return s.cache.GetStats()
}

// PoolStats exposes the connection pool statistics
func (s *SQLStore) PoolStats() DBStats {
	return s.db.GetStats()
}

func (s *SQLStore) Close() error {
	s.cache.Clear()
	return s.db.Close()
}
