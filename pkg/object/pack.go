package object

import (
	"encoding/binary"
	"fmt"
)

// Pack data file layout:
//
//	0..7:   "BDRKPACK"
//	8..11:  version (big-endian)
//	12..:   entries
//
// Each entry:
//
//	u8 object type | u8 flags | u64 payload length (big-endian) | payload
//
// The uncompressed payload is the object's loose bytes. The pack checksum is
// the digest of the whole data file and names both the data and index files.
const (
	packDataHeaderSize   = 12
	packDataVersion      = 1
	packEntryHeaderSize  = 1 + 1 + 8
	packEntryFlagZstd    = 0x01
	packEntryKnownFlags  = packEntryFlagZstd
	maxPackEntryInMemory = 1 << 30
)

var packDataMagic = [8]byte{'B', 'D', 'R', 'K', 'P', 'A', 'C', 'K'}

func marshalPackDataHeader() []byte {
	buf := make([]byte, packDataHeaderSize)
	copy(buf[:8], packDataMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], packDataVersion)
	return buf
}

func unmarshalPackDataHeader(data []byte) error {
	if len(data) < packDataHeaderSize {
		return fmt.Errorf("pack data header too short: got %d bytes", len(data))
	}
	if string(data[:8]) != string(packDataMagic[:]) {
		return fmt.Errorf("invalid pack data magic %q", data[:8])
	}
	if v := binary.BigEndian.Uint32(data[8:12]); v != packDataVersion {
		return fmt.Errorf("unsupported pack data version %d", v)
	}
	return nil
}

type packEntryHeader struct {
	Type   ObjectType
	Flags  uint8
	Length uint64
}

func (h packEntryHeader) marshal() []byte {
	buf := make([]byte, packEntryHeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.BigEndian.PutUint64(buf[2:], h.Length)
	return buf
}

func unmarshalPackEntryHeader(data []byte) (packEntryHeader, error) {
	if len(data) < packEntryHeaderSize {
		return packEntryHeader{}, fmt.Errorf("entry header truncated")
	}
	h := packEntryHeader{
		Type:   ObjectType(data[0]),
		Flags:  data[1],
		Length: binary.BigEndian.Uint64(data[2:]),
	}
	if !h.Type.Valid() {
		return packEntryHeader{}, fmt.Errorf("invalid entry object type %d", data[0])
	}
	if h.Flags&^packEntryKnownFlags != 0 {
		return packEntryHeader{}, fmt.Errorf("unknown entry flags 0x%02x", h.Flags)
	}
	return h, nil
}
