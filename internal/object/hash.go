package object

// ziplistHash is the compact starting encoding for a Hash: an ordered
// sequence of field/value pairs, scanned linearly on lookup just like
// the packed byte-buffer original.
type ziplistHash struct {
	fields [][]byte
	values [][]byte
}

func newZiplistHash() *ziplistHash {
	return &ziplistHash{}
}

func (z *ziplistHash) indexOf(field []byte) int {
	for i, f := range z.fields {
		if string(f) == string(field) {
			return i
		}
	}
	return -1
}

// htHash is the general Hash encoding.
type htHash struct {
	m map[string][]byte
}

func newHTHash() *htHash {
	return &htHash{m: make(map[string][]byte)}
}

// HashSet sets a field to value on a Hash Object, converting from
// ziplist to hashtable encoding once either the field/value count or
// any individual field/value size exceeds the configured thresholds.
func HashSet(o *Object, field, value []byte) {
	if o.typ != TypeHash {
		panic("object: HashSet called on non-hash Object")
	}

	switch o.encoding {
	case EncodingZiplist:
		z := o.payload.(*ziplistHash)
		t := currentThresholds()
		oversized := len(field) > t.HashMaxZiplistSize || len(value) > t.HashMaxZiplistSize
		if idx := z.indexOf(field); idx >= 0 && !oversized {
			z.values[idx] = value
		} else if oversized || len(z.fields)+1 > t.HashMaxZiplistLen {
			ht := newHTHash()
			for i, f := range z.fields {
				ht.m[string(f)] = z.values[i]
			}
			ht.m[string(field)] = value
			o.encoding = EncodingHashtable
			o.payload = ht
			return
		} else {
			z.fields = append(z.fields, field)
			z.values = append(z.values, value)
		}
	case EncodingHashtable:
		ht := o.payload.(*htHash)
		ht.m[string(field)] = value
	default:
		panic("object: Hash Object has invalid encoding")
	}
}

// HashGet looks up a field on a Hash Object.
func HashGet(o *Object, field []byte) ([]byte, bool) {
	if o.typ != TypeHash {
		panic("object: HashGet called on non-hash Object")
	}
	switch o.encoding {
	case EncodingZiplist:
		z := o.payload.(*ziplistHash)
		if idx := z.indexOf(field); idx >= 0 {
			return z.values[idx], true
		}
		return nil, false
	case EncodingHashtable:
		v, ok := o.payload.(*htHash).m[string(field)]
		return v, ok
	default:
		panic("object: Hash Object has invalid encoding")
	}
}

// HashLen returns the number of fields in a Hash Object.
func HashLen(o *Object) int {
	if o.typ != TypeHash {
		panic("object: HashLen called on non-hash Object")
	}
	switch o.encoding {
	case EncodingZiplist:
		return len(o.payload.(*ziplistHash).fields)
	case EncodingHashtable:
		return len(o.payload.(*htHash).m)
	default:
		panic("object: Hash Object has invalid encoding")
	}
}
