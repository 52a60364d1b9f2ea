// Package presence tracks which users currently hold a live connection.
// The registry is the single writer of online/offline truth; all delivery
// decisions read through it.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store persists durable presence state. Persistence is fire-and-forget
// relative to the in-memory transition.
type Store interface {
	UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error
}

const persistTimeout = 5 * time.Second

// Entry is the public view of one user's presence.
type Entry struct {
	UserID   int
	Name     string
	Online   bool
	LastSeen time.Time
}

type entry struct {
	connID   string
	name     string
	online   bool
	lastSeen time.Time
}

// Registry is a mutex-serialized map from user id to presence entry.
// Entries survive disconnect with online=false so last-seen stays
// queryable.
type Registry struct {
	mu      sync.Mutex
	entries map[int]*entry
	store   Store
	logger  zerolog.Logger
}

// NewRegistry constructs a Registry. store may be nil in tests.
func NewRegistry(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[int]*entry),
		store:   store,
		logger:  logger,
	}
}

// SetOnline registers a live connection for the user. Last writer wins: a
// newer session overwrites whatever handle was registered before.
func (r *Registry) SetOnline(userID int, name, connID string) {
	now := time.Now()

	r.mu.Lock()
	r.entries[userID] = &entry{connID: connID, name: name, online: true, lastSeen: now}
	r.mu.Unlock()

	r.persist(userID, true, now)
}

// SetOffline marks the user offline, but only when connID still matches the
// registered handle. A stale disconnect handler racing a fast reconnect is
// therefore a no-op. Returns the recorded last-seen and whether the
// transition applied.
func (r *Registry) SetOffline(userID int, connID string) (time.Time, bool) {
	now := time.Now()

	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok || !e.online || e.connID != connID {
		r.mu.Unlock()
		return time.Time{}, false
	}
	e.online = false
	e.connID = ""
	e.lastSeen = now
	r.mu.Unlock()

	r.persist(userID, false, now)
	return now, true
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	return ok && e.online
}

// Lookup returns the connection handle for an online user.
func (r *Registry) Lookup(userID int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok || !e.online {
		return "", false
	}
	return e.connID, true
}

// LastSeen returns the last recorded transition time for the user.
func (r *Registry) LastSeen(userID int) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// Snapshot returns every currently online user.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for id, e := range r.entries {
		if e.online {
			out = append(out, Entry{UserID: id, Name: e.name, Online: true, LastSeen: e.lastSeen})
		}
	}
	return out
}

// persist writes the durable columns without blocking the caller.
func (r *Registry) persist(userID int, online bool, lastSeen time.Time) {
	if r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.UpdatePresence(ctx, userID, online, lastSeen); err != nil {
			r.logger.Warn().Err(err).Int("user_id", userID).Msg("presence persistence failed")
		}
	}()
}
