package presence

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(nil, zerolog.Nop())
}

func TestSetOnlineAndLookup(t *testing.T) {
	r := newTestRegistry()

	r.SetOnline(1, "alice", "conn-a")

	require.True(t, r.IsOnline(1))
	connID, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "conn-a", connID)

	_, ok = r.Lookup(2)
	assert.False(t, ok)
}

func TestSetOnlineLastWriterWins(t *testing.T) {
	r := newTestRegistry()

	r.SetOnline(1, "alice", "conn-a")
	r.SetOnline(1, "alice", "conn-b")

	connID, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "conn-b", connID)
}

func TestSetOfflineRecordsLastSeen(t *testing.T) {
	r := newTestRegistry()

	r.SetOnline(1, "alice", "conn-a")
	lastSeen, applied := r.SetOffline(1, "conn-a")

	require.True(t, applied)
	assert.False(t, lastSeen.IsZero())
	assert.False(t, r.IsOnline(1))

	// Entry survives disconnect so last-seen stays queryable.
	got, ok := r.LastSeen(1)
	require.True(t, ok)
	assert.Equal(t, lastSeen, got)
}

func TestStaleSetOfflineIsNoop(t *testing.T) {
	r := newTestRegistry()

	r.SetOnline(1, "alice", "conn-a")
	r.SetOnline(1, "alice", "conn-b")

	// The old session's disconnect handler runs after the reconnect.
	_, applied := r.SetOffline(1, "conn-a")
	assert.False(t, applied)
	assert.True(t, r.IsOnline(1))
}

func TestRapidReconnectEndsOnline(t *testing.T) {
	r := newTestRegistry()

	// connect -> disconnect -> connect in quick succession, with the stale
	// offline arriving last.
	r.SetOnline(1, "alice", "conn-a")
	r.SetOnline(1, "alice", "conn-b")
	_, applied := r.SetOffline(1, "conn-a")

	assert.False(t, applied)
	require.True(t, r.IsOnline(1))
	connID, _ := r.Lookup(1)
	assert.Equal(t, "conn-b", connID)
}

func TestSetOfflineUnknownUser(t *testing.T) {
	r := newTestRegistry()

	_, applied := r.SetOffline(99, "conn-x")
	assert.False(t, applied)
}

func TestSnapshotOnlineOnly(t *testing.T) {
	r := newTestRegistry()

	r.SetOnline(1, "alice", "conn-a")
	r.SetOnline(2, "bob", "conn-b")
	r.SetOffline(2, "conn-b")

	entries := r.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].UserID)
	assert.Equal(t, "alice", entries[0].Name)
}
