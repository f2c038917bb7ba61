package object

import "container/list"

// ziplist is the compact starting encoding for a List: a contiguous
// sequence of entries. Real redis packs these into one byte buffer
// with prev-length back-links for reverse traversal; here the
// encoding-transition behavior is what's load-bearing, not the byte
// layout, so entries are kept as a plain slice.
type ziplist struct {
	entries [][]byte
}

func newZiplist() *ziplist {
	return &ziplist{}
}

func (z *ziplist) Len() int { return len(z.entries) }

// linkedList is the general List encoding, used once a list exceeds
// the ziplist thresholds. Backed by container/list the way a doubly
// linked adjacency structure is expected to behave.
type linkedList struct {
	l *list.List
}

func newLinkedList() *linkedList {
	return &linkedList{l: list.New()}
}

func (ll *linkedList) Len() int { return ll.l.Len() }

// ListPush appends an element to a List Object, converting it from
// ziplist to linked-list encoding when either the element count or the
// element's size exceeds the configured thresholds. The conversion is
// one-way.
func ListPush(o *Object, value []byte) {
	if o.typ != TypeList {
		panic("object: ListPush called on non-list Object")
	}

	switch o.encoding {
	case EncodingZiplist:
		z := o.payload.(*ziplist)
		t := currentThresholds()
		if len(value) > t.ListMaxZiplistSize || z.Len()+1 > t.ListMaxZiplistLen {
			ll := newLinkedList()
			for _, e := range z.entries {
				ll.l.PushBack(e)
			}
			ll.l.PushBack(value)
			o.encoding = EncodingLinkedList
			o.payload = ll
			return
		}
		z.entries = append(z.entries, value)
	case EncodingLinkedList:
		ll := o.payload.(*linkedList)
		ll.l.PushBack(value)
	default:
		panic("object: List Object has invalid encoding")
	}
}

// ListLen returns the number of elements in a List Object.
func ListLen(o *Object) int {
	if o.typ != TypeList {
		panic("object: ListLen called on non-list Object")
	}
	switch o.encoding {
	case EncodingZiplist:
		return o.payload.(*ziplist).Len()
	case EncodingLinkedList:
		return o.payload.(*linkedList).Len()
	default:
		panic("object: List Object has invalid encoding")
	}
}

// ListValues materializes every element of a List Object in order.
// Intended for tests and DUMP serialization, not the hot command path.
func ListValues(o *Object) [][]byte {
	if o.typ != TypeList {
		panic("object: ListValues called on non-list Object")
	}
	switch o.encoding {
	case EncodingZiplist:
		return append([][]byte(nil), o.payload.(*ziplist).entries...)
	case EncodingLinkedList:
		ll := o.payload.(*linkedList)
		out := make([][]byte, 0, ll.Len())
		for e := ll.l.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.([]byte))
		}
		return out
	default:
		panic("object: List Object has invalid encoding")
	}
}
