package history

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"reading-leveler/internal/storage"
)

type stepClock struct{ t time.Time }

// every call advances one second so ids are naturally distinct
func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestHistory() (*History, *storage.Memory) {
	mem := storage.NewMemory()
	clock := &stepClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	return New(mem, WithClock(clock.Now), WithLocation(time.UTC)), mem
}

func TestSaveThenLoadOrder(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory()

	if _, err := h.Save(ctx, "T1", "hello", "G3"); err != nil {
		t.Fatalf("save1: %v", err)
	}
	if _, err := h.Save(ctx, "T2", "world", "G3"); err != nil {
		t.Fatalf("save2: %v", err)
	}

	themes, err := h.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(themes) != 2 {
		t.Fatalf("want 2, got %d", len(themes))
	}
	if themes[0].Title != "T1" || themes[1].Title != "T2" {
		t.Fatalf("order mismatch: %+v", themes)
	}
	if themes[0].ID == themes[1].ID {
		t.Fatalf("ids must be distinct: %+v", themes)
	}
	if themes[0].Content != "hello" || themes[0].Grade != "G3" {
		t.Fatalf("round trip mismatch: %+v", themes[0])
	}
	if themes[0].CreatedAt != "2024/01/15 08:00:01" {
		t.Fatalf("unexpected created_at: %q", themes[0].CreatedAt)
	}
}

func TestSaveEvictsOldest(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory()

	for i := 1; i <= 11; i++ {
		if _, err := h.Save(ctx, fmt.Sprintf("T%d", i), fmt.Sprintf("content %d", i), "G4"); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		themes, _ := h.Load(ctx)
		if len(themes) > DefaultCapacity {
			t.Fatalf("length %d exceeds capacity after save %d", len(themes), i)
		}
	}

	themes, _ := h.Load(ctx)
	if len(themes) != 10 {
		t.Fatalf("want 10, got %d", len(themes))
	}
	for i, th := range themes {
		want := fmt.Sprintf("T%d", i+2)
		if th.Title != want {
			t.Fatalf("position %d: want %s, got %s", i, want, th.Title)
		}
	}
}

func TestSaveDefaultTitleAndCustomCapacity(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	h := New(mem, WithCapacity(2))

	th, err := h.Save(ctx, "", "text", "G1")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if th.Title != DefaultTitle {
		t.Fatalf("want default title, got %q", th.Title)
	}
	_, _ = h.Save(ctx, "b", "text", "G1")
	_, _ = h.Save(ctx, "c", "text", "G1")
	themes, _ := h.Load(ctx)
	if len(themes) != 2 || themes[0].Title != "b" {
		t.Fatalf("unexpected themes: %+v", themes)
	}
}

func TestIDsUniqueWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	h := New(storage.NewMemory(), WithClock(func() time.Time { return frozen }))

	seen := map[int64]bool{}
	var last int64
	for i := 0; i < 5; i++ {
		th, err := h.Save(ctx, "t", "c", "g")
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if seen[th.ID] {
			t.Fatalf("duplicate id %d", th.ID)
		}
		if th.ID <= last {
			t.Fatalf("ids not monotonic: %d after %d", th.ID, last)
		}
		seen[th.ID] = true
		last = th.ID
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory()
	_, _ = h.Save(ctx, "T1", "a", "G1")
	_, _ = h.Save(ctx, "T2", "b", "G1")

	before, _ := h.Load(ctx)
	after, err := h.Delete(ctx, 42)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("sequence changed: %+v -> %+v", before, after)
	}
	reloaded, _ := h.Load(ctx)
	if !reflect.DeepEqual(before, reloaded) {
		t.Fatalf("persisted sequence changed")
	}
}

func TestDeleteExisting(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory()
	first, _ := h.Save(ctx, "T1", "a", "G1")
	_, _ = h.Save(ctx, "T2", "b", "G1")

	out, err := h.Delete(ctx, first.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(out) != 1 || out[0].Title != "T2" {
		t.Fatalf("unexpected result: %+v", out)
	}
	themes, _ := h.Load(ctx)
	if len(themes) != 1 {
		t.Fatalf("delete not persisted: %+v", themes)
	}
}

func TestUse(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory()
	saved, _ := h.Save(ctx, "Harbour", "Hong Kong is a city.", "Grade 4")

	th, found, err := h.Use(ctx, saved.ID)
	if err != nil || !found {
		t.Fatalf("use: found=%v err=%v", found, err)
	}
	if th.Content != "Hong Kong is a city." || th.Grade != "Grade 4" {
		t.Fatalf("unexpected theme: %+v", th)
	}

	_, found, err = h.Use(ctx, saved.ID+1000)
	if err != nil || found {
		t.Fatalf("missing id should be a silent miss: found=%v err=%v", found, err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory()
	empty, err := h.Load(ctx)
	if err != nil || len(empty) != 0 || empty == nil {
		t.Fatalf("empty load: %v err=%v", empty, err)
	}
	_, _ = h.Save(ctx, "T1", "a", "G1")
	a, _ := h.Load(ctx)
	b, _ := h.Load(ctx)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("loads differ: %+v vs %+v", a, b)
	}
}

func TestLoadCorruptValue(t *testing.T) {
	ctx := context.Background()
	h, mem := newTestHistory()
	_ = mem.Set(ctx, StorageKey, "{oops")
	if _, err := h.Load(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestSaveStorageFailure(t *testing.T) {
	h := New(failingStore{storage.NewMemory()})
	if _, err := h.Save(context.Background(), "t", "c", "g"); err == nil {
		t.Fatalf("expected storage error")
	}
}
