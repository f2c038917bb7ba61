package object

import "sync"

// defaultSharedIntMax is the default upper bound for the shared small-integer
// pool (0..defaultSharedIntMax inclusive), mirroring redis's default 10000
// shared objects. Pool construction is driven by config at startup via
// InitShared; this is only the fallback used by tests and by New*
// calls issued before InitShared runs.
const defaultSharedIntMax = 9999

var (
	sharedMu      sync.RWMutex
	sharedIntMax  int64 = defaultSharedIntMax
	sharedInts    []*Object
	sharingEnabled bool = true
)

func init() {
	rebuildSharedPool()
}

// InitShared (re)builds the shared integer pool and toggles sharing.
// Sharing must be disabled when a memory cap is configured, because
// capped deployments need per-object independent access clocks for
// eviction to behave correctly.
func InitShared(max int64, maxMemorySet bool) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedIntMax = max
	sharingEnabled = !maxMemorySet
	rebuildSharedPoolLocked()
}

func rebuildSharedPool() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	rebuildSharedPoolLocked()
}

func rebuildSharedPoolLocked() {
	n := sharedIntMax + 1
	if n < 0 {
		n = 0
	}
	pool := make([]*Object, n)
	for i := range pool {
		pool[i] = &Object{
			typ:      TypeString,
			encoding: EncodingInt,
			refcount: 1,
			shared:   true,
			payload:  int64(i),
		}
	}
	sharedInts = pool
}

// lookupShared returns the shared Object for n, if sharing is enabled
// and n falls in [0, sharedIntMax].
func lookupShared(n int64) (*Object, bool) {
	sharedMu.RLock()
	defer sharedMu.RUnlock()
	if !sharingEnabled || n < 0 || n > sharedIntMax || int(n) >= len(sharedInts) {
		return nil, false
	}
	return sharedInts[n], true
}
