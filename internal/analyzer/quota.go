package analyzer

import (
	"context"
	"sync"
	"time"
)

// PersistedCounter reports how many frames were analyzed since a point
// in time, derived from durable analysis markers.
type PersistedCounter interface {
	CountAnalyzedSince(ctx context.Context, since time.Time) (int, error)
}

// QuotaTracker enforces a rolling daily ceiling on vision-model calls.
// It combines an in-process counter keyed by calendar day with the
// persisted count of frames analyzed today; the effective count is the
// max of the two, so a restart cannot under-count and unflushed
// same-process calls are still visible. Safe for concurrent pipeline
// runs sharing one process.
//
// Construct one tracker per process and pass it by reference; tests
// inject a fresh tracker, and multi-process deployments can swap the
// counter for a shared one.
type QuotaTracker struct {
	limit   int
	counter PersistedCounter
	now     func() time.Time

	mu    sync.Mutex
	day   string
	calls int
}

// NewQuotaTracker creates a tracker with the given daily limit.
func NewQuotaTracker(limit int, counter PersistedCounter) *QuotaTracker {
	return &QuotaTracker{
		limit:   limit,
		counter: counter,
		now:     time.Now,
	}
}

// Limit returns the fixed daily ceiling.
func (q *QuotaTracker) Limit() int {
	return q.limit
}

// Effective returns the enforced call count for the current day.
func (q *QuotaTracker) Effective(ctx context.Context) (int, error) {
	today := q.now().UTC()
	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	persisted := 0
	if q.counter != nil {
		var err error
		persisted, err = q.counter.CountAnalyzedSince(ctx, dayStart)
		if err != nil {
			return 0, err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover(today)
	if q.calls > persisted {
		return q.calls, nil
	}
	return persisted, nil
}

// Allow reports whether another vision call fits under today's limit.
func (q *QuotaTracker) Allow(ctx context.Context) (bool, error) {
	effective, err := q.Effective(ctx)
	if err != nil {
		return false, err
	}
	return effective < q.limit, nil
}

// RecordCall notes one successful vision call for the current day.
func (q *QuotaTracker) RecordCall() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover(q.now().UTC())
	q.calls++
}

// rollover resets the in-memory counter when the calendar day changes.
// Caller holds the mutex.
func (q *QuotaTracker) rollover(now time.Time) {
	day := now.Format("2006-01-02")
	if q.day != day {
		q.day = day
		q.calls = 0
	}
}
