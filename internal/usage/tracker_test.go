package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reading-leveler/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestTracker(start time.Time) (*Tracker, *fakeClock, *storage.Memory) {
	clock := &fakeClock{t: start}
	mem := storage.NewMemory()
	return NewTracker(mem, DefaultLimits(), WithClock(clock.Now)), clock, mem
}

func TestCheck_DailyLimitScenario(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	d, err := tr.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Reason != "" {
		t.Fatalf("fresh state should be allowed: %+v", d)
	}

	for i := 1; i <= 10; i++ {
		d, err := tr.Check(ctx)
		if err != nil || !d.Allowed {
			t.Fatalf("call %d should be allowed: %+v err=%v", i, d, err)
		}
		if _, err := tr.Record(ctx); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	d, err = tr.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Reason != DailyLimitReason(10) {
		t.Fatalf("11th call should hit the daily limit: %+v", d)
	}

	// stays blocked for the rest of the day
	d, _ = tr.Check(ctx)
	if d.Allowed {
		t.Fatalf("expected still blocked")
	}
}

func TestCheck_MonthlyLimitAcrossDays(t *testing.T) {
	ctx := context.Background()
	tr, clock, _ := newTestTracker(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	// 50 uses spread over 6 days, never 10 on a single day
	perDay := []int{9, 9, 9, 9, 9, 5}
	for day, n := range perDay {
		clock.t = time.Date(2024, 3, 1+day, 10, 0, 0, 0, time.UTC)
		for i := 0; i < n; i++ {
			d, err := tr.Check(ctx)
			if err != nil || !d.Allowed {
				t.Fatalf("day %d use %d should be allowed: %+v err=%v", day+1, i+1, d, err)
			}
			if _, err := tr.Record(ctx); err != nil {
				t.Fatalf("record: %v", err)
			}
		}
	}

	clock.t = time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	s, _ := tr.Snapshot(ctx)
	if s.DayCount != 0 || s.MonthCount != 50 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	d, err := tr.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Reason != MonthlyLimitReason(50) {
		t.Fatalf("51st use should hit the monthly limit: %+v", d)
	}

	// a new month starts fresh
	clock.t = time.Date(2024, 4, 1, 0, 0, 1, 0, time.UTC)
	d, _ = tr.Check(ctx)
	if !d.Allowed {
		t.Fatalf("new month should be allowed: %+v", d)
	}
}

func TestCheck_DailyTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	tr, _, mem := newTestTracker(time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC))
	_ = mem.Set(ctx, "usage_2024-01-31", "10")
	_ = mem.Set(ctx, "usage_2024-01", "50")

	d, err := tr.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Reason != DailyLimitReason(10) {
		t.Fatalf("want daily reason, got %+v", d)
	}
}

func TestCheck_HasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	tr, _, mem := newTestTracker(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	for i := 0; i < 5; i++ {
		if _, err := tr.Check(ctx); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	keys, _ := mem.Keys(ctx, "")
	if len(keys) != 0 {
		t.Fatalf("check must not create counters, got %v", keys)
	}
}

func TestRecord_PersistsBothCounters(t *testing.T) {
	ctx := context.Background()
	tr, _, mem := newTestTracker(time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC))

	s, err := tr.Record(ctx)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.DayCount != 1 || s.MonthCount != 1 || s.Day != "2024-01-15" || s.Month != "2024-01" {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if v, _, _ := mem.Get(ctx, "usage_2024-01-15"); v != "1" {
		t.Fatalf("day counter = %q", v)
	}
	if v, _, _ := mem.Get(ctx, "usage_2024-01"); v != "1" {
		t.Fatalf("month counter = %q", v)
	}
	if got := s.String(); got != "Today: 1/10 | This month: 1/50" {
		t.Fatalf("unexpected display: %q", got)
	}
}

func TestReserve_HoldsSlotUntilCommitOrRelease(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	tr := NewTracker(storage.NewMemory(), Limits{PerDay: 2, PerMonth: 50}, WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		d, err := tr.Reserve(ctx)
		if err != nil || !d.Allowed {
			t.Fatalf("reserve %d: %+v err=%v", i, d, err)
		}
	}
	if d, _ := tr.Reserve(ctx); d.Allowed {
		t.Fatalf("third reservation allowed while two are in flight")
	}
	if d, _ := tr.Check(ctx); d.Allowed || d.Reason != DailyLimitReason(2) {
		t.Fatalf("check ignores reservations: %+v", d)
	}

	tr.Release()
	if tr.Pending() != 1 {
		t.Fatalf("pending = %d", tr.Pending())
	}
	s, err := tr.Commit(ctx)
	if err != nil || s.DayCount != 1 {
		t.Fatalf("commit: %+v err=%v", s, err)
	}
	if tr.Pending() != 0 {
		t.Fatalf("pending = %d after commit", tr.Pending())
	}

	if d, _ := tr.Reserve(ctx); !d.Allowed {
		t.Fatalf("released slot not reusable: %+v", d)
	}
	tr.Release()
	tr.Release()
	if tr.Pending() != 0 {
		t.Fatalf("pending went negative: %d", tr.Pending())
	}
}

func TestReserve_Concurrent(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := tr.Reserve(ctx)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if !d.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			if _, err := tr.Commit(ctx); err != nil {
				t.Errorf("commit: %v", err)
			}
		}()
	}
	wg.Wait()

	s, _ := tr.Snapshot(ctx)
	if allowed != MaxUsesPerDay || s.DayCount != MaxUsesPerDay {
		t.Fatalf("allowed=%d day_count=%d, want %d", allowed, s.DayCount, MaxUsesPerDay)
	}
}

func TestPeriodKeys_UseUTC(t *testing.T) {
	hk := time.FixedZone("HKT", 8*3600)
	day, month := PeriodKeys(time.Date(2024, 2, 1, 2, 0, 0, 0, hk))
	if day != "2024-01-31" || month != "2024-01" {
		t.Fatalf("got %s %s", day, month)
	}
}

func TestCorruptCounter(t *testing.T) {
	ctx := context.Background()
	tr, _, mem := newTestTracker(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	_ = mem.Set(ctx, "usage_2024-01-15", "lots")

	if _, err := tr.Check(ctx); !errors.Is(err, ErrCorruptCounter) {
		t.Fatalf("want ErrCorruptCounter, got %v", err)
	}
	if _, err := tr.Record(ctx); !errors.Is(err, ErrCorruptCounter) {
		t.Fatalf("want ErrCorruptCounter, got %v", err)
	}
}

func TestUnlimited(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	tr := NewTracker(mem, Limits{PerDay: -1, PerMonth: -1})
	for i := 0; i < 60; i++ {
		if _, err := tr.Record(ctx); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	d, _ := tr.Check(ctx)
	if !d.Allowed {
		t.Fatalf("unlimited tracker blocked: %+v", d)
	}
	s, _ := tr.Snapshot(ctx)
	if s.String() != "Today: 60/unlimited | This month: 60/unlimited" {
		t.Fatalf("unexpected display: %q", s.String())
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	seed := map[string]string{
		"client:a:usage_2024-03-20": "1",
		"client:a:usage_2024-03-01": "1",
		"client:a:usage_2024-02-10": "4",
		"client:a:usage_2024-03":    "6",
		"client:a:usage_2024-02":    "4",
		"client:b:usage_2023-01":    "2",
		"client:b:usage_2023-01-05": "2",
		"client:a:saved_themes":     "[]",
		"client:a:usage_garbage":    "1",
	}
	for k, v := range seed {
		_ = mem.Set(ctx, k, v)
	}

	now := time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC)
	removed, err := Prune(ctx, mem, now, Retention{Days: 7, Months: 1})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 4 {
		t.Fatalf("want 4 removed, got %d", removed)
	}

	keep := []string{"client:a:usage_2024-03-20", "client:a:usage_2024-03", "client:a:usage_2024-02", "client:a:saved_themes", "client:a:usage_garbage"}
	for _, k := range keep {
		if _, ok, _ := mem.Get(ctx, k); !ok {
			t.Fatalf("%s should survive", k)
		}
	}
	gone := []string{"client:a:usage_2024-03-01", "client:a:usage_2024-02-10", "client:b:usage_2023-01", "client:b:usage_2023-01-05"}
	for _, k := range gone {
		if _, ok, _ := mem.Get(ctx, k); ok {
			t.Fatalf("%s should be pruned", k)
		}
	}
}
