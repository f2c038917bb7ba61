// Package keyspace defines the external-collaborator abstractions the
// core depends on but does not implement the policy for — key lookup,
// expiry, and object persistence hooks — plus a concrete sharded
// in-memory Store good enough to drive the command dispatcher and its
// end-to-end tests.
package keyspace

import (
	"time"

	"github.com/adred-codev/kvstore-core/internal/object"
)

// Keyspace is the lookup/mutate surface command handlers depend on.
type Keyspace interface {
	Lookup(key string) (*object.Object, bool)
	Add(key string, value *object.Object)
	Delete(key string) bool
	SetExpire(key string, when time.Time)
	GetExpire(key string) (time.Time, bool)
}

// Persistence is the save/load hook surface DUMP/RESTORE and any
// future RDB-style loader would call through.
type Persistence interface {
	SaveObjectType(o *object.Object) byte
	SaveObject(o *object.Object) []byte
	LoadObjectType(b byte) (object.Type, error)
	LoadObject(typ object.Type, payload []byte) (*object.Object, error)
}
