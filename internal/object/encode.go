package object

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotAnInteger is returned when a String Object's content cannot be
// parsed as a base-10 i64.
var ErrNotAnInteger = errors.New("object: value is not an integer")

// ErrNotAFloat is returned when a String Object's content cannot be
// parsed as a float (NaN, surrounding whitespace or trailing garbage;
// "inf" and "-inf" are accepted).
var ErrNotAFloat = errors.New("object: value is not a float")

func parseInt64(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	// Reject non-canonical forms ("+5", "007", " 5") the way redis's
	// string2ll does, so TryEncode round-trips exactly.
	if string(formatInt(n)) != string(b) {
		return 0, false
	}
	return n, true
}

// TryEncode attempts to convert a Raw-encoded String Object to the
// more compact Int encoding. Only eligible when refcount == 1 (a
// shared object must never be observed to change encoding under a
// second holder) and the content round-trips through base-10 i64
// formatting exactly. Ineligible objects, including ones with
// refcount > 1, are returned unchanged — the source short-circuits in
// that case and this preserves that rather than copying, per the
// spec's Open Question resolution.
func TryEncode(o *Object) *Object {
	if o.typ != TypeString || o.encoding != EncodingRaw {
		return o
	}
	if o.RefCount() != 1 {
		return o
	}

	raw := o.payload.([]byte)
	if n, ok := parseInt64(raw); ok {
		if shared, ok := lookupShared(n); ok {
			return shared
		}
		o.encoding = EncodingInt
		o.payload = n
		return o
	}

	// Strings longer than 32 bytes with more than 10% slack capacity
	// are shrunk to fit by copying into an exactly-sized slice on the
	// same Object; observable content is unchanged.
	if len(raw) > 32 && cap(raw)-len(raw) > len(raw)/10 {
		shrunk := make([]byte, len(raw))
		copy(shrunk, raw)
		o.payload = shrunk
	}
	return o
}

// Decoded returns a Raw-String view of o. For Int encoding this
// allocates a fresh byte slice; for Raw it returns the existing bytes
// without copying.
func Decoded(o *Object) []byte {
	if o.typ != TypeString {
		panic("object: Decoded called on non-string Object")
	}
	switch o.encoding {
	case EncodingInt:
		return formatInt(o.payload.(int64))
	default:
		return o.payload.([]byte)
	}
}

// CompareMode selects the collation used by Compare when neither side
// is numeric.
type CompareMode int

const (
	CompareBinary CompareMode = iota
	CompareCollation
)

// Compare orders two String Objects. When either side is Int-encoded,
// the comparison formats on the stack and compares without allocating
// a decoded Raw copy; the bytes are then compared with memcmp
// (CompareBinary). CompareCollation compares the same bytes with
// strings.Compare, which is also a plain byte order: no locale rules
// are applied.
func Compare(a, b *Object, mode CompareMode) int {
	if a.typ != TypeString || b.typ != TypeString {
		panic("object: Compare called on non-string Object")
	}

	var abuf, bbuf [20]byte
	var ab, bb []byte
	if a.encoding == EncodingInt {
		ab = strconv.AppendInt(abuf[:0], a.payload.(int64), 10)
	} else {
		ab = a.payload.([]byte)
	}
	if b.encoding == EncodingInt {
		bb = strconv.AppendInt(bbuf[:0], b.payload.(int64), 10)
	} else {
		bb = b.payload.([]byte)
	}

	if mode == CompareCollation {
		return strings.Compare(string(ab), string(bb))
	}
	return bytes.Compare(ab, bb)
}

// Equal reports whether two String Objects have identical content.
func Equal(a, b *Object) bool {
	return Compare(a, b, CompareBinary) == 0
}

// ToInt64 parses a String Object's content as an i64.
func ToInt64(o *Object) (int64, error) {
	if o.typ != TypeString {
		return 0, ErrNotAnInteger
	}
	if o.encoding == EncodingInt {
		return o.payload.(int64), nil
	}
	n, ok := parseInt64(o.payload.([]byte))
	if !ok {
		return 0, ErrNotAnInteger
	}
	return n, nil
}

// ToFloat64 parses a String Object's content as a float64, rejecting
// NaN, surrounding whitespace, and any input not fully consumed by the
// parse — mirroring getDoubleFromObject's strtod-based validation.
func ToFloat64(o *Object) (float64, error) {
	if o.typ != TypeString {
		return 0, ErrNotAFloat
	}
	if o.encoding == EncodingInt {
		return float64(o.payload.(int64)), nil
	}

	s := string(o.payload.([]byte))
	if s == "" || strings.TrimSpace(s) != s {
		return 0, ErrNotAFloat
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrNotAFloat
	}
	if math.IsNaN(f) {
		return 0, ErrNotAFloat
	}
	return f, nil
}
