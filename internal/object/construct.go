package object

import "strconv"

// NewStringRaw creates a Raw-encoded String Object by taking ownership
// of the given bytes (callers must not mutate them afterward).
func NewStringRaw(b []byte) *Object {
	return newObject(TypeString, EncodingRaw, b)
}

// NewStringInt creates an Int-encoded String Object from an i64. When
// n falls within the shared pool's range and sharing is enabled, the
// shared sentinel is returned instead of a fresh allocation.
func NewStringInt(n int64) *Object {
	if shared, ok := lookupShared(n); ok {
		shared.IncRef()
		return shared
	}
	return newObject(TypeString, EncodingInt, n)
}

func formatInt(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// NewListZiplist creates an empty List Object in its compact starting encoding.
func NewListZiplist() *Object {
	return newObject(TypeList, EncodingZiplist, newZiplist())
}

// NewListLinked creates an empty List Object using the general linked-list encoding.
func NewListLinked() *Object {
	return newObject(TypeList, EncodingLinkedList, newLinkedList())
}

// NewSetIntset creates an empty Set Object in its compact integer-only starting encoding.
func NewSetIntset() *Object {
	return newObject(TypeSet, EncodingIntset, newIntset())
}

// NewSetHT creates an empty Set Object using the general hashtable encoding.
func NewSetHT() *Object {
	return newObject(TypeSet, EncodingHashtable, newHTSet())
}

// NewHashZiplist creates an empty Hash Object in its compact starting encoding.
func NewHashZiplist() *Object {
	return newObject(TypeHash, EncodingZiplist, newZiplistHash())
}

// NewHashHT creates an empty Hash Object using the general hashtable encoding.
func NewHashHT() *Object {
	return newObject(TypeHash, EncodingHashtable, newHTHash())
}

// NewZSetZiplist creates an empty SortedSet Object in its compact starting encoding.
func NewZSetZiplist() *Object {
	return newObject(TypeSortedSet, EncodingZiplist, newZiplistZSet())
}

// NewZSetSkiplist creates an empty SortedSet Object using the general skiplist encoding.
func NewZSetSkiplist() *Object {
	return newObject(TypeSortedSet, EncodingSkiplist, newSkiplist())
}
