// Package quota enforces per-user, per-provider daily request limits.
//
// A counter exists per (user, provider, calendar day); a new day starts from
// zero because the day is part of the key. Only successful provider calls
// are counted. Admission and recording are separate steps, so concurrent
// requests hold a Reservation between the two: in-flight reservations count
// against the limit and admission is serialized per key.
package quota

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
	"listing_enricher/internal/utils"
)

const stripes = 64

// LimitSource supplies the daily limit of a provider. A limit <= 0 means
// unlimited.
type LimitSource interface {
	DailyLimit(provider string) int
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLocation sets the time zone that defines the calendar day
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker admits and records provider calls against daily limits
type Tracker struct {
	counters Counters
	limits   LimitSource
	now      func() time.Time
	loc      *time.Location
	logger   *utils.Logger

	locks    [stripes]sync.Mutex
	mu       sync.Mutex
	inflight map[string]int
}

// NewTracker creates a tracker. The calendar day defaults to UTC.
func NewTracker(counters Counters, limits LimitSource, opts ...Option) *Tracker {
	t := &Tracker{
		counters: counters,
		limits:   limits,
		now:      time.Now,
		loc:      time.UTC,
		logger:   utils.NewLogger("quota"),
		inflight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Key is the counter key of (user, provider, day)
func Key(userID, provider, day string) string {
	return fmt.Sprintf("usage:%s:%s:%s", userID, provider, day)
}

// Today returns the current calendar day as YYYY-MM-DD
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format("2006-01-02")
}

func (t *Tracker) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &t.locks[h.Sum32()%stripes]
}

func (t *Tracker) pending(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[key]
}

func (t *Tracker) adjust(key string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[key] += delta
	if t.inflight[key] <= 0 {
		delete(t.inflight, key)
	}
}

func (t *Tracker) used(ctx context.Context, key string) (int, error) {
	n, err := t.counters.Get(ctx, key)
	if err != nil {
		return 0, apperr.Storage("usage counter read", err)
	}
	return int(n), nil
}

// CheckAdmit reports whether another request would be admitted right now.
// It has no side effects.
func (t *Tracker) CheckAdmit(ctx context.Context, userID, provider string) (bool, error) {
	limit := t.limits.DailyLimit(provider)
	if limit <= 0 {
		return true, nil
	}

	key := Key(userID, provider, t.Today())
	used, err := t.used(ctx, key)
	if err != nil {
		return false, err
	}
	return used+t.pending(key) < limit, nil
}

// RecordSuccess counts one successful call for today
func (t *Tracker) RecordSuccess(ctx context.Context, userID, provider string) error {
	key := Key(userID, provider, t.Today())
	if _, err := t.counters.Increment(ctx, key); err != nil {
		return apperr.Storage("usage counter increment", err)
	}
	return nil
}

// StatsFor reports today's usage
func (t *Tracker) StatsFor(ctx context.Context, userID, provider string) (models.UsageStats, error) {
	day := t.Today()
	used, err := t.used(ctx, Key(userID, provider, day))
	if err != nil {
		return models.UsageStats{}, err
	}

	limit := t.limits.DailyLimit(provider)
	remaining := limit - used
	if remaining < 0 || limit <= 0 {
		remaining = 0
	}

	return models.UsageStats{
		UserID:     userID,
		ProviderID: provider,
		Day:        day,
		Used:       used,
		Limit:      limit,
		Remaining:  remaining,
	}, nil
}

// Acquire admits one request and holds a slot for it until the reservation
// is committed or released. A full quota fails with a QuotaExceeded error.
func (t *Tracker) Acquire(ctx context.Context, userID, provider string) (*Reservation, error) {
	key := Key(userID, provider, t.Today())
	limit := t.limits.DailyLimit(provider)

	lock := t.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if limit > 0 {
		used, err := t.used(ctx, key)
		if err != nil {
			return nil, err
		}
		if held := t.pending(key); used+held >= limit {
			t.logger.Info("Quota exhausted", "user_id", userID, "provider", provider, "used", used, "in_flight", held, "limit", limit)
			return nil, apperr.QuotaExceeded(provider, used, limit)
		}
	}

	t.adjust(key, 1)
	return &Reservation{tracker: t, key: key, provider: provider}, nil
}

// Reservation is an admitted, not yet counted request
type Reservation struct {
	tracker  *Tracker
	key      string
	provider string

	once sync.Once
}

// Commit counts the request against the day it was admitted on and frees
// the slot. Calling Commit or Release again is a no-op.
func (r *Reservation) Commit(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		defer r.tracker.adjust(r.key, -1)
		if _, incErr := r.tracker.counters.Increment(ctx, r.key); incErr != nil {
			err = apperr.Storage("usage counter increment", incErr)
		}
	})
	return err
}

// Release frees the slot without consuming quota
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.tracker.adjust(r.key, -1)
	})
}
