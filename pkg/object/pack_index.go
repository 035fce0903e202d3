package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Pack index layout (all integers big-endian):
//
//	0..3:    magic 0xff 'b' 'I' 'X'
//	4..7:    version
//	8..39:   pack checksum (raw digest of the data file)
//	40..43:  entry count
//	44..:    count * (u8 object type | 32-byte checksum | u64 offset)
//
// The file length must match the entry count exactly.
const (
	packIndexVersion    = 1
	packIndexHeaderSize = 4 + 4 + DigestSize + 4
	packIndexEntrySize  = 1 + DigestSize + 8
)

var packIndexMagic = [4]byte{0xff, 'b', 'I', 'X'}

// PackIndexEntry is one row in a pack index file.
type PackIndexEntry struct {
	Name   ObjectName
	Offset uint64
}

// PackIndex is the in-memory form of a pack index.
type PackIndex struct {
	PackChecksum Hash
	entries      []PackIndexEntry
	byName       map[ObjectName]uint64
}

// Entries returns a copy of all index entries in file order.
func (idx *PackIndex) Entries() []PackIndexEntry {
	out := make([]PackIndexEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Len returns the number of entries.
func (idx *PackIndex) Len() int {
	return len(idx.entries)
}

// Find returns the data file offset of an object.
func (idx *PackIndex) Find(name ObjectName) (uint64, bool) {
	off, ok := idx.byName[name]
	return off, ok
}

// WritePackIndex writes an index for the provided entries. Entries are
// written sorted by object name so the same pack always yields the same
// index bytes.
func WritePackIndex(w io.Writer, packChecksum Hash, entries []PackIndexEntry) error {
	packRaw, err := hashHexToBytes(packChecksum)
	if err != nil {
		return fmt.Errorf("pack checksum: %w", err)
	}
	if uint64(len(entries)) > uint64(^uint32(0)) {
		return fmt.Errorf("too many pack index entries: %d", len(entries))
	}

	sorted := make([]PackIndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name.Less(sorted[j].Name) })

	var buf bytes.Buffer
	buf.Grow(packIndexHeaderSize + len(sorted)*packIndexEntrySize)
	buf.Write(packIndexMagic[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(packIndexVersion))
	buf.Write(packRaw)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(sorted)))

	for i, entry := range sorted {
		if !entry.Name.Type.Valid() {
			return fmt.Errorf("entry %d: invalid object type %d", i, entry.Name.Type)
		}
		raw, err := hashHexToBytes(entry.Name.Checksum)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		buf.WriteByte(byte(entry.Name.Type))
		buf.Write(raw)
		_ = binary.Write(&buf, binary.BigEndian, entry.Offset)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write pack index: %w", err)
	}
	return nil
}

// ParsePackIndex decodes and structurally validates index bytes.
func ParsePackIndex(data []byte) (*PackIndex, error) {
	if len(data) < packIndexHeaderSize {
		return nil, fmt.Errorf("pack index too short: %d", len(data))
	}
	if string(data[:4]) != string(packIndexMagic[:]) {
		return nil, fmt.Errorf("invalid pack index magic %q", data[:4])
	}
	if version := binary.BigEndian.Uint32(data[4:8]); version != packIndexVersion {
		return nil, fmt.Errorf("unsupported pack index version %d", version)
	}
	packChecksum, err := hashFromBytes(data[8 : 8+DigestSize])
	if err != nil {
		return nil, fmt.Errorf("pack index checksum: %w", err)
	}
	n := uint64(binary.BigEndian.Uint32(data[8+DigestSize:]))
	want := uint64(packIndexHeaderSize) + n*packIndexEntrySize
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("pack index length %d does not match %d entries (want %d)", len(data), n, want)
	}

	idx := &PackIndex{
		PackChecksum: packChecksum,
		entries:      make([]PackIndexEntry, 0, n),
		byName:       make(map[ObjectName]uint64, n),
	}
	cursor := packIndexHeaderSize
	for i := uint64(0); i < n; i++ {
		t := ObjectType(data[cursor])
		if !t.Valid() {
			return nil, fmt.Errorf("pack index entry %d: invalid object type %d", i, data[cursor])
		}
		sum, _ := hashFromBytes(data[cursor+1 : cursor+1+DigestSize])
		offset := binary.BigEndian.Uint64(data[cursor+1+DigestSize:])
		cursor += packIndexEntrySize

		name := ObjectName{Checksum: sum, Type: t}
		if _, dup := idx.byName[name]; dup {
			return nil, fmt.Errorf("pack index entry %d: duplicate object %s", i, name)
		}
		idx.entries = append(idx.entries, PackIndexEntry{Name: name, Offset: offset})
		idx.byName[name] = offset
	}
	return idx, nil
}

// ReadPackIndexFrom parses an index stream.
func ReadPackIndexFrom(r io.Reader) (*PackIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack index stream: %w", err)
	}
	return ParsePackIndex(data)
}
