package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reading-leveler/internal/storage"
)

const (
	DefaultCapacity = 10
	DefaultTitle    = "Untitled theme"
	StorageKey      = "saved_themes"

	displayLayout = "2006/01/02 15:04:05"
)

// Theme is one saved submission.
type Theme struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Grade     string `json:"grade"`
	CreatedAt string `json:"created_at"`
}

// History is a capacity-bounded list of themes kept under a single store key,
// oldest first. Saving past capacity evicts the oldest entry.
type History struct {
	mu       sync.Mutex
	store    storage.Store
	capacity int
	now      func() time.Time
	loc      *time.Location
}

type Option func(*History)

func WithCapacity(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// WithLocation sets the zone used for CreatedAt.
func WithLocation(loc *time.Location) Option {
	return func(h *History) {
		if loc != nil {
			h.loc = loc
		}
	}
}

func New(store storage.Store, opts ...Option) *History {
	h := &History{store: store, capacity: DefaultCapacity, now: time.Now, loc: time.Local}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *History) Capacity() int { return h.capacity }

func (h *History) Save(ctx context.Context, title, content, grade string) (Theme, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	themes, err := h.loadUnlocked(ctx)
	if err != nil {
		return Theme{}, err
	}

	now := h.now()
	id := now.UnixMilli()
	for _, t := range themes {
		if t.ID >= id {
			id = t.ID + 1
		}
	}
	if title == "" {
		title = DefaultTitle
	}
	theme := Theme{
		ID:        id,
		Title:     title,
		Content:   content,
		Grade:     grade,
		CreatedAt: now.In(h.loc).Format(displayLayout),
	}

	themes = append(themes, theme)
	if len(themes) > h.capacity {
		themes = themes[1:]
	}
	if err := h.saveUnlocked(ctx, themes); err != nil {
		return Theme{}, err
	}
	return theme, nil
}

// Load returns the saved themes, oldest first.
func (h *History) Load(ctx context.Context) ([]Theme, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadUnlocked(ctx)
}

// Delete removes the theme with id. A missing id leaves the list untouched.
func (h *History) Delete(ctx context.Context, id int64) ([]Theme, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	themes, err := h.loadUnlocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Theme, 0, len(themes))
	for _, t := range themes {
		if t.ID != id {
			out = append(out, t)
		}
	}
	if len(out) == len(themes) {
		return themes, nil
	}
	if err := h.saveUnlocked(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Use looks up a theme for reuse. found is false when no theme has id.
func (h *History) Use(ctx context.Context, id int64) (Theme, bool, error) {
	themes, err := h.Load(ctx)
	if err != nil {
		return Theme{}, false, err
	}
	for _, t := range themes {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Theme{}, false, nil
}

func (h *History) loadUnlocked(ctx context.Context) ([]Theme, error) {
	raw, ok, err := h.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read themes: %w", err)
	}
	themes := []Theme{}
	if !ok || raw == "" {
		return themes, nil
	}
	if err := json.Unmarshal([]byte(raw), &themes); err != nil {
		return nil, fmt.Errorf("decode themes: %w", err)
	}
	if themes == nil {
		themes = []Theme{}
	}
	return themes, nil
}

func (h *History) saveUnlocked(ctx context.Context, themes []Theme) error {
	b, err := json.Marshal(themes)
	if err != nil {
		return fmt.Errorf("encode themes: %w", err)
	}
	if err := h.store.Set(ctx, StorageKey, string(b)); err != nil {
		return fmt.Errorf("write themes: %w", err)
	}
	return nil
}
