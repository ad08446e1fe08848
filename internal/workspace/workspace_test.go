package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reading-leveler/internal/storage"
	"reading-leveler/internal/usage"
)

func newRegistry(store storage.Store) *Registry {
	return NewRegistry(store, Settings{
		Limits:        usage.DefaultLimits(),
		ThemeCapacity: 10,
		DraftIdle:     time.Second,
		Location:      time.UTC,
		Now:           func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) },
	})
}

func TestRegistry_CachesWorkspaces(t *testing.T) {
	r := newRegistry(storage.NewMemory())
	defer r.Close()

	a, err := r.Get("alice")
	require.NoError(t, err)
	again, err := r.Get("alice")
	require.NoError(t, err)
	assert.Same(t, a, again)

	anon, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, DefaultClientID, anon.ClientID)
}

func TestRegistry_IsolatesClients(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	r := newRegistry(mem)
	defer r.Close()

	a, _ := r.Get("alice")
	b, _ := r.Get("bob")

	_, err := a.Usage.Record(ctx)
	require.NoError(t, err)
	_, err = a.Themes.Save(ctx, "t", "c", "g")
	require.NoError(t, err)

	sb, _ := b.Usage.Snapshot(ctx)
	assert.Zero(t, sb.DayCount)
	themes, _ := b.Themes.Load(ctx)
	assert.Empty(t, themes)

	keys, _ := mem.Keys(ctx, "")
	assert.Equal(t, []string{"client:alice:saved_themes", "client:alice:usage_2024-01", "client:alice:usage_2024-01-15"}, keys)
}

func TestValidClientID(t *testing.T) {
	assert.True(t, ValidClientID("tg-12345"))
	assert.True(t, ValidClientID("A_b-9"))
	assert.False(t, ValidClientID(""))
	assert.False(t, ValidClientID("has space"))
	assert.False(t, ValidClientID("a:b"))
	assert.False(t, ValidClientID(string(make([]byte, 65))))

	_, err := newRegistry(storage.NewMemory()).Get("../etc")
	assert.ErrorIs(t, err, ErrInvalidClientID)
}

func TestRegistry_EvictsIdleWorkspaces(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	mem := storage.NewMemory()
	r := NewRegistry(mem, Settings{
		Limits:        usage.DefaultLimits(),
		ThemeCapacity: 10,
		DraftIdle:     time.Hour,
		Location:      time.UTC,
		Now:           func() time.Time { return now },
	})
	defer r.Close()

	idle, _ := r.Get("idle")
	_, err := idle.Usage.Record(ctx)
	require.NoError(t, err)
	busy, _ := r.Get("busy")
	d, err := busy.Usage.Reserve(ctx)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	drafting, _ := r.Get("drafting")
	require.True(t, drafting.Drafts.Touch("An unsaved draft that is long enough.", "Grade 3"))

	now = now.Add(20 * time.Minute)
	_, _ = r.Get("fresh")
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, r.Evict(30*time.Minute))
	assert.Equal(t, 3, r.Len())

	again, err := r.Get("idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)
	snap, _ := again.Usage.Snapshot(ctx)
	assert.Equal(t, 1, snap.DayCount)

	busy.Usage.Release()
	assert.Equal(t, 1, r.Evict(30*time.Minute))
	assert.Equal(t, 3, r.Len())
}
