package keyspace

import (
	"encoding/binary"
	"fmt"

	"github.com/adred-codev/kvstore-core/internal/object"
)

// The typeByte* constants map an object.Type to the single byte DUMP embeds.
// Values are stable across the DumpVersion the payload declares.
const (
	typeByteString    byte = 0
	typeByteList      byte = 1
	typeByteSet       byte = 2
	typeByteHash      byte = 3
	typeByteSortedSet byte = 4
)

// DefaultPersistence implements Persistence using a simple
// length-prefixed internal serialization — not RDB-compatible, but
// sufficient for DUMP/RESTORE/MIGRATE round-trips between instances
// of this store.
type DefaultPersistence struct{}

func (DefaultPersistence) SaveObjectType(o *object.Object) byte {
	switch o.Type() {
	case object.TypeString:
		return typeByteString
	case object.TypeList:
		return typeByteList
	case object.TypeSet:
		return typeByteSet
	case object.TypeHash:
		return typeByteHash
	case object.TypeSortedSet:
		return typeByteSortedSet
	default:
		return typeByteString
	}
}

func (DefaultPersistence) LoadObjectType(b byte) (object.Type, error) {
	switch b {
	case typeByteString:
		return object.TypeString, nil
	case typeByteList:
		return object.TypeList, nil
	case typeByteSet:
		return object.TypeSet, nil
	case typeByteHash:
		return object.TypeHash, nil
	case typeByteSortedSet:
		return object.TypeSortedSet, nil
	default:
		return 0, fmt.Errorf("keyspace: unknown object type byte %d", b)
	}
}

func (DefaultPersistence) SaveObject(o *object.Object) []byte {
	switch o.Type() {
	case object.TypeString:
		return appendLenPrefixed(nil, object.Decoded(o))
	case object.TypeList:
		values := object.ListValues(o)
		buf := appendUint32(nil, uint32(len(values)))
		for _, v := range values {
			buf = appendLenPrefixed(buf, v)
		}
		return buf
	default:
		// Set/Hash/SortedSet bodies are opaque beyond what the core
		// exposes publicly; MIGRATE of those types is handled by the
		// external command layer, not the core persistence hook.
		return nil
	}
}

func (DefaultPersistence) LoadObject(typ object.Type, payload []byte) (*object.Object, error) {
	switch typ {
	case object.TypeString:
		v, _, err := readLenPrefixed(payload, 0)
		if err != nil {
			return nil, err
		}
		return object.NewStringRaw(append([]byte(nil), v...)), nil
	case object.TypeList:
		if len(payload) < 4 {
			return nil, fmt.Errorf("keyspace: truncated list payload")
		}
		n := binary.LittleEndian.Uint32(payload)
		offset := 4
		o := object.NewListZiplist()
		for i := uint32(0); i < n; i++ {
			v, next, err := readLenPrefixed(payload, offset)
			if err != nil {
				return nil, err
			}
			object.ListPush(o, append([]byte(nil), v...))
			offset = next
		}
		return o, nil
	default:
		return nil, fmt.Errorf("keyspace: restore not supported for type %v", typ)
	}
}

func appendUint32(buf []byte, n uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, n)
	return append(buf, tmp...)
}

func appendLenPrefixed(buf, value []byte) []byte {
	buf = appendUint32(buf, uint32(len(value)))
	return append(buf, value...)
}

func readLenPrefixed(payload []byte, offset int) (value []byte, next int, err error) {
	if offset+4 > len(payload) {
		return nil, 0, fmt.Errorf("keyspace: truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint32(payload[offset:]))
	offset += 4
	if offset+n > len(payload) {
		return nil, 0, fmt.Errorf("keyspace: truncated value")
	}
	return payload[offset : offset+n], offset + n, nil
}
