package workspace

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"reading-leveler/internal/history"
	"reading-leveler/internal/storage"
	"reading-leveler/internal/usage"
)

const DefaultClientID = "anonymous"

var (
	ErrInvalidClientID = errors.New("client id must be 1-64 characters of letters, digits, '-' or '_'")

	clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Workspace holds the per-client quota and theme state. All of it lives in a
// store namespace of its own, so the keys inside match a single-client setup.
type Workspace struct {
	ClientID string
	Usage    *usage.Tracker
	Themes   *history.History
	Drafts   *history.AutoSaver

	lastUsed time.Time
}

type Settings struct {
	Limits        usage.Limits
	ThemeCapacity int
	DraftIdle     time.Duration
	Location      *time.Location
	Now           func() time.Time
}

// Registry creates workspaces lazily. Idle ones are dropped by Evict; their
// state stays in the store and is picked up again on the next Get.
type Registry struct {
	store    storage.Store
	settings Settings

	mutex      sync.Mutex
	workspaces map[string]*Workspace
}

func NewRegistry(store storage.Store, settings Settings) *Registry {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Registry{
		store:      store,
		settings:   settings,
		workspaces: make(map[string]*Workspace),
	}
}

// ValidClientID reports whether id can be used as a namespace.
func ValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// Namespace returns the key prefix used for a client.
func Namespace(clientID string) string {
	return "client:" + clientID + ":"
}

// Get returns the workspace for clientID, creating it on first use.
// An empty id maps to DefaultClientID.
func (r *Registry) Get(clientID string) (*Workspace, error) {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if !ValidClientID(clientID) {
		return nil, ErrInvalidClientID
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	now := r.settings.Now()
	if ws, ok := r.workspaces[clientID]; ok {
		ws.lastUsed = now
		return ws, nil
	}

	ns := storage.Prefixed(r.store, Namespace(clientID))
	themes := history.New(ns,
		history.WithCapacity(r.settings.ThemeCapacity),
		history.WithLocation(r.settings.Location),
		history.WithClock(r.settings.Now),
	)
	ws := &Workspace{
		ClientID: clientID,
		Usage:    usage.NewTracker(ns, r.settings.Limits, usage.WithClock(r.settings.Now)),
		Themes:   themes,
		Drafts:   history.NewAutoSaver(themes, r.settings.DraftIdle),
		lastUsed: now,
	}
	r.workspaces[clientID] = ws
	return ws, nil
}

// Evict drops workspaces not requested for longer than idle. Workspaces
// with a generation in flight or an unsaved draft are kept.
func (r *Registry) Evict(idle time.Duration) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	cutoff := r.settings.Now().Add(-idle)
	removed := 0
	for id, ws := range r.workspaces {
		if !ws.lastUsed.Before(cutoff) || ws.Usage.Pending() > 0 || ws.Drafts.Pending() {
			continue
		}
		ws.Drafts.Stop()
		delete(r.workspaces, id)
		removed++
	}
	return removed
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.workspaces)
}

// Close stops pending draft saves of every workspace.
func (r *Registry) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, ws := range r.workspaces {
		ws.Drafts.Stop()
	}
}
