// Package object implements the polymorphic, reference-counted value
// model: a tagged (type, encoding) container with a shared-object pool
// for small immutable integers and one-way encoding transitions driven
// by configurable size thresholds.
package object

import (
	"sync/atomic"
)

// Type is the logical value type of an Object.
type Type int

const (
	TypeString Type = iota
	TypeList
	TypeSet
	TypeHash
	TypeSortedSet
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeHash:
		return "hash"
	case TypeSortedSet:
		return "zset"
	default:
		return "unknown"
	}
}

// Encoding is the internal representation chosen for a value,
// independent of its logical Type.
type Encoding int

const (
	EncodingRaw Encoding = iota
	EncodingInt
	EncodingLinkedList
	EncodingZiplist
	EncodingHashtable
	EncodingIntset
	EncodingSkiplist
)

// Name returns the wire-visible encoding name used by OBJECT ENCODING.
func (e Encoding) Name() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingInt:
		return "int"
	case EncodingLinkedList:
		return "linkedlist"
	case EncodingZiplist:
		return "ziplist"
	case EncodingHashtable:
		return "hashtable"
	case EncodingIntset:
		return "intset"
	case EncodingSkiplist:
		return "skiplist"
	default:
		return "unknown"
	}
}

// lruClockMax bounds the LRU clock so idle-time subtraction can wrap
// using modular arithmetic instead of overflowing.
const lruClockMax = 1 << 24

// Object is the polymorphic value container. Every live Object
// reachable from a keyspace or a client's argv/reply must have
// refcount >= 1; a decref to zero dispatches to the destructor implied
// by typ (a type switch over payload, since Go has no union types —
// see the "enumerated tagged variant" note this was modeled on).
type Object struct {
	typ      Type
	encoding Encoding
	refcount int32
	lru      uint32
	shared   bool
	payload  any
}

func newObject(typ Type, encoding Encoding, payload any) *Object {
	return &Object{typ: typ, encoding: encoding, refcount: 1, payload: payload}
}

// Type reports the logical value type.
func (o *Object) Type() Type { return o.typ }

// EncodingKind reports the current internal encoding.
func (o *Object) EncodingKind() Encoding { return o.encoding }

// RefCount reports the current reference count. Shared objects always
// report a positive value but it is informational only: it is never
// decremented to zero and the object is never freed.
func (o *Object) RefCount() int32 {
	if o.shared {
		return atomic.LoadInt32(&o.refcount)
	}
	return atomic.LoadInt32(&o.refcount)
}

// IncRef increments the reference count. Shared objects are sentinel:
// like DecRef, IncRef is a no-op for them.
func (o *Object) IncRef() {
	if o.shared {
		return
	}
	atomic.AddInt32(&o.refcount, 1)
}

// DecRef decrements the reference count. When it reaches zero the
// payload is released (type-dispatched only in the sense that Go's GC
// reclaims the payload once unreferenced — there is no explicit
// destructor beyond clearing the pointer, unlike the C original).
// Shared objects are sentinel: DecRef is a no-op for them.
func (o *Object) DecRef() {
	if o.shared {
		return
	}
	if atomic.AddInt32(&o.refcount, -1) <= 0 {
		o.payload = nil
	}
}

// SetLRU stamps the object's last-access clock.
func (o *Object) SetLRU(clock uint32) { atomic.StoreUint32(&o.lru, clock) }

// IdleTime returns the seconds since last access given the current
// coarse LRU clock, using modular subtraction over lruClockMax to
// tolerate clock wraparound.
func (o *Object) IdleTime(clock uint32) uint32 {
	last := atomic.LoadUint32(&o.lru)
	if clock >= last {
		return clock - last
	}
	return (lruClockMax - last) + clock
}

// Length returns the logical byte length of a String Object. It panics
// if called on a non-String Object, mirroring the precondition the
// original command handlers enforce before calling stringObjectLen.
func (o *Object) Length() int {
	if o.typ != TypeString {
		panic("object: Length called on non-string Object")
	}
	switch o.encoding {
	case EncodingInt:
		return len(formatInt(o.payload.(int64)))
	default:
		return len(o.payload.([]byte))
	}
}
