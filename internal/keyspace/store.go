package keyspace

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/adred-codev/kvstore-core/internal/object"
)

// shardCount follows the same sharded-map idiom used for connection
// registries: spreading keys across independent locks avoids a single
// global mutex becoming a bottleneck under concurrent external access
// (the reactor thread itself never needs the lock — it only ever owns
// one goroutine).
const shardCount = 32

type entry struct {
	value  *object.Object
	expiry time.Time
	hasTTL bool
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Store is a sharded in-memory Keyspace implementation, good enough
// to back command dispatch without pulling in a full RDB/AOF stack.
type Store struct {
	shards [shardCount]*shard
}

// NewStore returns an empty Store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return s.shards[h%shardCount]
}

// Lookup returns the key's object if present and not expired. An
// expired key is lazily deleted on lookup.
func (s *Store) Lookup(key string) (*object.Object, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	if e.hasTTL && time.Now().After(e.expiry) {
		delete(sh.entries, key)
		return nil, false
	}
	return e.value, true
}

// Add inserts or overwrites key with value, clearing any prior TTL.
func (s *Store) Add(key string, value *object.Object) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries[key] = entry{value: value}
}

// Delete removes key, returning whether it was present.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[key]; !ok {
		return false
	}
	delete(sh.entries, key)
	return true
}

// SetExpire attaches an absolute expiry time to an existing key. A
// no-op if the key isn't present.
func (s *Store) SetExpire(key string, when time.Time) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok {
		return
	}
	e.expiry = when
	e.hasTTL = true
	sh.entries[key] = e
}

// GetExpire reports a key's absolute expiry time, if any.
func (s *Store) GetExpire(key string) (time.Time, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok || !e.hasTTL {
		return time.Time{}, false
	}
	return e.expiry, true
}

// Len reports the total number of (possibly expired, not yet swept) keys.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
