package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Identity{Kind: KindUser, ID: 42}
	bob   = Identity{Kind: KindHelper, ID: 42}
	carol = Identity{Kind: KindUser, ID: 7}
)

func TestRegistry_AddAndLookup(t *testing.T) {
	r := NewRegistry(Options{})

	require.False(t, r.IsOnline(alice))
	require.Empty(t, r.GetConnections(alice))

	require.True(t, r.AddConnection(alice, "h1"), "first handle brings identity online")
	require.False(t, r.AddConnection(alice, "h2"))

	require.True(t, r.IsOnline(alice))
	require.Equal(t, []Handle{"h1", "h2"}, r.GetConnections(alice))
	require.False(t, r.IsOnline(bob), "same numeric id but different kind")
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := NewRegistry(Options{})
	r.AddConnection(alice, "h1")
	r.AddConnection(alice, "h1")

	require.Equal(t, []Handle{"h1"}, r.GetConnections(alice))
	ids, conns := r.Stats()
	require.Equal(t, 1, ids)
	require.Equal(t, 1, conns)
}

func TestRegistry_RemovePrunesEmptyIdentity(t *testing.T) {
	r := NewRegistry(Options{})
	r.AddConnection(alice, "h1")
	r.AddConnection(alice, "h2")

	require.False(t, r.RemoveConnection(alice, "h1"))
	require.True(t, r.IsOnline(alice))
	require.Equal(t, []Handle{"h2"}, r.GetConnections(alice))

	require.True(t, r.RemoveConnection(alice, "h2"))
	require.False(t, r.IsOnline(alice))
	require.Empty(t, r.GetConnections(alice))
	require.NotContains(t, r.GetAllConnections(), alice)
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(Options{})
	require.False(t, r.RemoveConnection(alice, "never-added"))

	r.AddConnection(alice, "h1")
	require.False(t, r.RemoveConnection(alice, "other"))
	require.True(t, r.IsOnline(alice))
}

func TestRegistry_MismatchedRemovalIsIgnored(t *testing.T) {
	r := NewRegistry(Options{})
	r.AddConnection(bob, "hb")
	r.AddConnection(alice, "ha")

	require.False(t, r.RemoveConnection(alice, "hb"))

	require.Equal(t, []Handle{"hb"}, r.GetConnections(bob))
	require.Equal(t, []Handle{"ha"}, r.GetConnections(alice))
	owner, ok := r.Owner("hb")
	require.True(t, ok)
	require.Equal(t, bob, owner)
}

func TestRegistry_HandleMovesToLatestOwner(t *testing.T) {
	r := NewRegistry(Options{})
	r.AddConnection(alice, "h1")
	r.AddConnection(carol, "h1")

	require.False(t, r.IsOnline(alice), "a handle belongs to one identity at a time")
	require.Equal(t, []Handle{"h1"}, r.GetConnections(carol))
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	r := NewRegistry(Options{})
	r.AddConnection(alice, "h1")

	snap := r.GetConnections(alice)
	snap[0] = "tampered"
	all := r.GetAllConnections()
	all[alice] = nil

	require.Equal(t, []Handle{"h1"}, r.GetConnections(alice))
}

func TestRegistry_RemoveAllConnections(t *testing.T) {
	r := NewRegistry(Options{})
	r.AddConnection(alice, "h1")
	r.AddConnection(alice, "h2")
	r.AddConnection(carol, "h3")

	removed := r.RemoveAllConnections(alice)
	require.Equal(t, []Handle{"h1", "h2"}, removed)
	require.False(t, r.IsOnline(alice))
	require.True(t, r.IsOnline(carol))
	_, ok := r.Owner("h1")
	require.False(t, ok)

	require.Nil(t, r.RemoveAllConnections(alice))
}

func TestRegistry_LastSeen(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now = func() time.Time { return at }
	t.Cleanup(func() { now = time.Now })

	r := NewRegistry(Options{LastSeenTTL: time.Hour})
	_, ok := r.LastSeen(alice)
	require.False(t, ok)

	r.AddConnection(alice, "h1")
	r.RemoveConnection(alice, "h1")
	seen, ok := r.LastSeen(alice)
	require.True(t, ok)
	require.Equal(t, at, seen)

	r.AddConnection(alice, "h2")
	_, ok = r.LastSeen(alice)
	require.False(t, ok, "reconnecting clears the offline timestamp")
}

// model applies the same operations to a trivially correct reference.
type model map[Identity]map[Handle]struct{}

func (m model) add(id Identity, h Handle) {
	for other, set := range m {
		if other != id {
			delete(set, h)
		}
	}
	if m[id] == nil {
		m[id] = map[Handle]struct{}{}
	}
	m[id][h] = struct{}{}
}

func (m model) remove(id Identity, h Handle) {
	delete(m[id], h)
}

func TestRegistry_MatchesReferenceModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ids := []Identity{alice, bob, carol, {Kind: KindHelper, ID: 3}}
	handles := []Handle{"a", "b", "c", "d", "e", "f"}

	r := NewRegistry(Options{Shards: 3})
	ref := model{}
	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		h := handles[rng.Intn(len(handles))]
		if rng.Intn(2) == 0 {
			r.AddConnection(id, h)
			ref.add(id, h)
		} else {
			r.RemoveConnection(id, h)
			ref.remove(id, h)
		}
		for _, check := range ids {
			require.Equal(t, len(ref[check]) > 0, r.IsOnline(check), "step %d identity %s", i, check)
		}
	}
}

func TestRegistry_ConcurrentConnectDisconnect(t *testing.T) {
	r := NewRegistry(Options{Shards: 4})
	const identities = 40
	const perIdentity = 25

	var wg sync.WaitGroup
	for i := 1; i <= identities; i++ {
		id := Identity{Kind: KindUser, ID: int64(i)}
		for j := 0; j < perIdentity; j++ {
			h := Handle(fmt.Sprintf("%d-%d", i, j))
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.AddConnection(id, h)
				_ = r.GetConnections(id)
				_ = r.IsOnline(id)
				if j%2 == 0 {
					r.RemoveConnection(id, h)
				}
			}()
		}
	}
	wg.Wait()

	ids, conns := r.Stats()
	assert.Equal(t, identities, ids)
	assert.Equal(t, identities*(perIdentity/2), conns)
	for i := 1; i <= identities; i++ {
		assert.Len(t, r.GetConnections(Identity{Kind: KindUser, ID: int64(i)}), perIdentity/2)
	}
}

// requireSingleOwner checks that h sits under exactly the identity Owner
// reports, or under none when it has no owner.
func requireSingleOwner(t *testing.T, r *Registry, h Handle) {
	t.Helper()
	var holders []Identity
	for id, handles := range r.GetAllConnections() {
		for _, got := range handles {
			if got == h {
				holders = append(holders, id)
			}
		}
	}
	owner, ok := r.Owner(h)
	if !ok {
		require.Empty(t, holders, "handle %s has no owner but is registered", h)
		return
	}
	require.Equal(t, []Identity{owner}, holders, "handle %s", h)
}

func TestRegistry_ConcurrentClaimsKeepOneOwner(t *testing.T) {
	r := NewRegistry(Options{Shards: 8})
	for i := 0; i < 500; i++ {
		h := Handle(fmt.Sprintf("shared-%d", i))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, id := range []Identity{alice, bob, carol} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				r.AddConnection(id, h)
			}()
		}
		close(start)
		wg.Wait()
		requireSingleOwner(t, r, h)
	}
}

func TestRegistry_ConcurrentAddAndRemoveAgree(t *testing.T) {
	r := NewRegistry(Options{Shards: 8})
	for i := 0; i < 500; i++ {
		h := Handle(fmt.Sprintf("flap-%d", i))
		r.AddConnection(alice, h)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); <-start; r.AddConnection(carol, h) }()
		go func() { defer wg.Done(); <-start; r.RemoveConnection(alice, h) }()
		go func() { defer wg.Done(); <-start; r.RemoveConnection(carol, h) }()
		close(start)
		wg.Wait()
		requireSingleOwner(t, r, h)
	}
}
