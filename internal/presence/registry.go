package presence

import (
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"home-services-api/internal/cache"
)

const defaultShards = 32

// Options configures a Registry.
type Options struct {
	// Shards is the number of independently locked partitions. Identities are
	// hashed onto shards, so traffic for unrelated identities rarely contends.
	Shards int

	// LastSeenTTL bounds how long the offline timestamp of an identity is kept.
	// Zero keeps it until the identity reconnects.
	LastSeenTTL time.Duration
}

type shard struct {
	mu    sync.RWMutex
	conns map[Identity]map[Handle]struct{}
}

// Registry maps identities to their live connection handles. It is safe for
// concurrent use and is meant to be constructed once per process and passed
// to the hub and dispatch service.
type Registry struct {
	shards []*shard

	// owners is the reverse index used to keep each handle under one identity.
	owners sync.Map // Handle -> Identity

	lastSeen *cache.TTLCache[Identity, time.Time]
}

// NewRegistry builds an empty registry.
func NewRegistry(opts Options) *Registry {
	n := opts.Shards
	if n <= 0 {
		n = defaultShards
	}
	r := &Registry{
		shards:   make([]*shard, n),
		lastSeen: cache.NewTTLCache[Identity, time.Time](opts.LastSeenTTL),
	}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[Identity]map[Handle]struct{})}
	}
	return r
}

// now is swapped out by tests.
var now = time.Now

func (r *Registry) shardFor(id Identity) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.Kind))
	_, _ = h.Write([]byte(strconv.FormatInt(id.ID, 10)))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// AddConnection records handle under id. Adding a handle that is already
// present is a no-op; a handle previously owned by another identity is moved.
// It reports whether id transitioned from offline to online.
//
// The owner index only changes under the lock of the shard whose set changes
// with it, so a handle is never left under two identities or without an owner.
func (r *Registry) AddConnection(id Identity, handle Handle) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	prev, moved := r.owners.Swap(handle, id)
	set, ok := s.conns[id]
	if !ok {
		set = make(map[Handle]struct{})
		s.conns[id] = set
	}
	set[handle] = struct{}{}
	s.mu.Unlock()

	if !ok {
		r.lastSeen.Delete(id)
	}
	if moved {
		if p := prev.(Identity); p != id {
			r.removeFromSet(p, handle, true)
		}
	}
	return !ok
}

// RemoveConnection drops handle from id's set. Unknown identities, unknown
// handles and handles owned by a different identity are ignored. It reports
// whether id transitioned from online to offline.
func (r *Registry) RemoveConnection(id Identity, handle Handle) bool {
	return r.removeFromSet(id, handle, false)
}

// removeFromSet deletes handle from id's set. With moving set, the handle has
// been claimed by another identity and is kept if it was handed back to id in
// the meantime; otherwise id's ownership is released with it.
func (r *Registry) removeFromSet(id Identity, handle Handle, moving bool) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	set, ok := s.conns[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if _, present := set[handle]; !present {
		s.mu.Unlock()
		return false
	}
	if moving {
		if owner, ok := r.owners.Load(handle); ok && owner.(Identity) == id {
			s.mu.Unlock()
			return false
		}
	} else {
		r.owners.CompareAndDelete(handle, id)
	}
	delete(set, handle)
	empty := len(set) == 0
	if empty {
		delete(s.conns, id)
	}
	s.mu.Unlock()

	if empty {
		r.lastSeen.Set(id, now(), 0)
	}
	return empty
}

// RemoveAllConnections clears every handle of id and returns them.
func (r *Registry) RemoveAllConnections(id Identity) []Handle {
	s := r.shardFor(id)
	s.mu.Lock()
	set, ok := s.conns[id]
	delete(s.conns, id)
	for h := range set {
		r.owners.CompareAndDelete(h, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	handles := slices.Sorted(maps.Keys(set))
	r.lastSeen.Set(id, now(), 0)
	return handles
}

// GetConnections returns a sorted copy of id's handles, empty when offline.
func (r *Registry) GetConnections(id Identity) []Handle {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.conns[id]
	if len(set) == 0 {
		return []Handle{}
	}
	return slices.Sorted(maps.Keys(set))
}

// IsOnline reports whether id holds at least one handle.
func (r *Registry) IsOnline(id Identity) bool {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[id]) > 0
}

// Owner returns the identity a handle is registered under.
func (r *Registry) Owner(handle Handle) (Identity, bool) {
	v, ok := r.owners.Load(handle)
	if !ok {
		return Identity{}, false
	}
	return v.(Identity), true
}

// GetAllConnections snapshots the whole registry. Shards are copied one at a
// time, so the result is consistent per identity but not globally.
func (r *Registry) GetAllConnections() map[Identity][]Handle {
	out := make(map[Identity][]Handle)
	for _, s := range r.shards {
		s.mu.RLock()
		for id, set := range s.conns {
			out[id] = slices.Sorted(maps.Keys(set))
		}
		s.mu.RUnlock()
	}
	return out
}

// LastSeen returns when id last went offline, if still remembered.
func (r *Registry) LastSeen(id Identity) (time.Time, bool) {
	return r.lastSeen.Get(id)
}

// LastSeenCache exposes the offline timestamp cache so the owner can run its janitor.
func (r *Registry) LastSeenCache() *cache.TTLCache[Identity, time.Time] {
	return r.lastSeen
}

// Stats returns the number of online identities and live handles.
func (r *Registry) Stats() (identities, connections int) {
	for _, s := range r.shards {
		s.mu.RLock()
		identities += len(s.conns)
		for _, set := range s.conns {
			connections += len(set)
		}
		s.mu.RUnlock()
	}
	return identities, connections
}
