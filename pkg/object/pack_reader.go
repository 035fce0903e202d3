package object

import (
	"errors"
	"fmt"
	"io"
)

var (
	// errPackEntryRange marks an index offset that points outside the data file.
	errPackEntryRange = errors.New("entry offset out of range")
	// errPackEntryInvalid marks entry bytes that do not decode.
	errPackEntryInvalid = errors.New("invalid pack entry")
)

// ReadPackEntryAt decodes the entry starting at offset in a pack data file of
// the given size, returning its object type and uncompressed payload.
func ReadPackEntryAt(r io.ReaderAt, size int64, offset uint64) (ObjectType, []byte, error) {
	if offset < packDataHeaderSize {
		return 0, nil, fmt.Errorf("%w: offset %d inside pack header", errPackEntryRange, offset)
	}
	if offset > uint64(size) || uint64(size)-offset < packEntryHeaderSize {
		return 0, nil, fmt.Errorf("%w: offset %d, pack size %d", errPackEntryRange, offset, size)
	}

	var rawHeader [packEntryHeaderSize]byte
	if _, err := r.ReadAt(rawHeader[:], int64(offset)); err != nil {
		return 0, nil, fmt.Errorf("read entry header at %d: %w", offset, err)
	}
	header, err := unmarshalPackEntryHeader(rawHeader[:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w at %d: %w", errPackEntryInvalid, offset, err)
	}

	start := offset + packEntryHeaderSize
	if header.Length > uint64(size)-start {
		return 0, nil, fmt.Errorf("%w at %d: payload length %d exceeds pack size %d", errPackEntryInvalid, offset, header.Length, size)
	}
	if header.Length > maxPackEntryInMemory {
		return 0, nil, fmt.Errorf("entry at %d: payload length %d too large", offset, header.Length)
	}
	payload := make([]byte, header.Length)
	if _, err := r.ReadAt(payload, int64(start)); err != nil && !(err == io.EOF && len(payload) == 0) {
		return 0, nil, fmt.Errorf("read entry payload at %d: %w", start, err)
	}

	if header.Flags&packEntryFlagZstd != 0 {
		decoded, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("%w at %d: zstd decompress: %w", errPackEntryInvalid, offset, err)
		}
		payload = decoded
	}
	return header.Type, payload, nil
}
