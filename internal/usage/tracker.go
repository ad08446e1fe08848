package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"reading-leveler/internal/storage"
)

const (
	MaxUsesPerDay   = 10
	MaxUsesPerMonth = 50

	keyPrefix   = "usage_"
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

var ErrCorruptCounter = errors.New("corrupt usage counter")

// Limits holds the per-period ceilings. A negative value disables the ceiling.
type Limits struct {
	PerDay   int `json:"per_day"`
	PerMonth int `json:"per_month"`
}

func DefaultLimits() Limits {
	return Limits{PerDay: MaxUsesPerDay, PerMonth: MaxUsesPerMonth}
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type Snapshot struct {
	Day        string `json:"day"`
	Month      string `json:"month"`
	DayCount   int    `json:"day_count"`
	MonthCount int    `json:"month_count"`
	Limits     Limits `json:"limits"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Today: %d/%s | This month: %d/%s",
		s.DayCount, limitLabel(s.Limits.PerDay), s.MonthCount, limitLabel(s.Limits.PerMonth))
}

func limitLabel(n int) string {
	if n < 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

// Tracker enforces the limits for one counter namespace. Uses reserved
// with Reserve count against the limits until they are committed or
// released, so concurrent requests cannot overshoot a ceiling.
type Tracker struct {
	mu      sync.Mutex
	store   storage.Store
	limits  Limits
	now     func() time.Time
	pending int
}

type Option func(*Tracker)

// WithClock replaces time.Now. Period keys are always computed in UTC.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store storage.Store, limits Limits, opts ...Option) *Tracker {
	t := &Tracker{store: store, limits: limits, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) Limits() Limits { return t.limits }

// Check reports whether another use is permitted. The daily ceiling is
// evaluated before the monthly one.
func (t *Tracker) Check(ctx context.Context) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decide(ctx)
}

// Reserve is Check that also holds the slot when the use is allowed.
// Every allowed reservation must end with Commit or Release.
func (t *Tracker) Reserve(ctx context.Context) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, err := t.decide(ctx)
	if err != nil || !d.Allowed {
		return d, err
	}
	t.pending++
	return d, nil
}

// Release gives back a reserved slot without recording a use.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending > 0 {
		t.pending--
	}
}

// Commit turns a reservation into a recorded use.
func (t *Tracker) Commit(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending > 0 {
		t.pending--
	}
	return t.record(ctx)
}

// Record increments the current day and month counters.
func (t *Tracker) Record(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(ctx)
}

// Pending returns the number of reservations in flight.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Tracker) decide(ctx context.Context) (Decision, error) {
	s, err := t.snapshotAt(ctx, t.now())
	if err != nil {
		return Decision{}, err
	}
	if t.limits.PerDay >= 0 && s.DayCount+t.pending >= t.limits.PerDay {
		return Decision{Reason: DailyLimitReason(t.limits.PerDay)}, nil
	}
	if t.limits.PerMonth >= 0 && s.MonthCount+t.pending >= t.limits.PerMonth {
		return Decision{Reason: MonthlyLimitReason(t.limits.PerMonth)}, nil
	}
	return Decision{Allowed: true}, nil
}

func (t *Tracker) record(ctx context.Context) (Snapshot, error) {
	s, err := t.snapshotAt(ctx, t.now())
	if err != nil {
		return Snapshot{}, err
	}
	day, err := storage.Incr(ctx, t.store, keyPrefix+s.Day)
	if err != nil {
		return Snapshot{}, fmt.Errorf("persist day counter: %w", err)
	}
	month, err := storage.Incr(ctx, t.store, keyPrefix+s.Month)
	if err != nil {
		return Snapshot{}, fmt.Errorf("persist month counter: %w", err)
	}
	s.DayCount, s.MonthCount = int(day), int(month)
	return s, nil
}

func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	return t.snapshotAt(ctx, t.now())
}

func (t *Tracker) snapshotAt(ctx context.Context, now time.Time) (Snapshot, error) {
	day, month := PeriodKeys(now)
	dayCount, err := t.read(ctx, keyPrefix+day)
	if err != nil {
		return Snapshot{}, err
	}
	monthCount, err := t.read(ctx, keyPrefix+month)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Day:        day,
		Month:      month,
		DayCount:   dayCount,
		MonthCount: monthCount,
		Limits:     t.limits,
	}, nil
}

// absent counter reads as zero
func (t *Tracker) read(ctx context.Context, key string) (int, error) {
	v, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrCorruptCounter, key, v)
	}
	return n, nil
}

// PeriodKeys returns the day (YYYY-MM-DD) and month (YYYY-MM) identifiers
// for now, in UTC.
func PeriodKeys(now time.Time) (day, month string) {
	u := now.UTC()
	return u.Format(dayLayout), u.Format(monthLayout)
}

func DailyLimitReason(limit int) string {
	return fmt.Sprintf("Daily usage limit reached (%d per day). Please try again tomorrow or contact an administrator for more uses.", limit)
}

func MonthlyLimitReason(limit int) string {
	return fmt.Sprintf("Monthly usage limit reached (%d per month). Please contact an administrator for more uses.", limit)
}
