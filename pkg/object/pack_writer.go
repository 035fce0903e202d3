package object

import (
	"fmt"
	"hash"
	"io"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

// PackWriter appends object entries to a pack data stream. The pack checksum
// is the digest over every byte written, so it is only known after Finish.
type PackWriter struct {
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	compress bool
	entries  []PackIndexEntry
	seen     map[ObjectName]struct{}
	finished bool
}

// NewPackWriter initializes a writer and writes the data file header. When
// compress is set, entries that shrink under zstd are stored compressed.
func NewPackWriter(out io.Writer, alg Algorithm, compress bool) (*PackWriter, error) {
	hasher := alg.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		compress: compress,
		seen:     make(map[ObjectName]struct{}),
	}
	if _, err := pw.hashedW.Write(marshalPackDataHeader()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// CurrentOffset returns the byte offset the next entry will be written at.
func (p *PackWriter) CurrentOffset() uint64 {
	return p.counter.n
}

// WriteEntry appends one object's loose bytes and records its offset.
func (p *PackWriter) WriteEntry(name ObjectName, data []byte) error {
	if p.finished {
		return fmt.Errorf("pack writer already finished")
	}
	if !name.Type.Valid() {
		return fmt.Errorf("invalid object type %d", name.Type)
	}
	if err := ValidateChecksum(name.Checksum); err != nil {
		return fmt.Errorf("pack entry %s: %w", name, err)
	}
	if _, dup := p.seen[name]; dup {
		return fmt.Errorf("pack entry %s written twice", name)
	}

	payload := data
	var flags uint8
	if p.compress {
		if compressed, err := compressZstd(data); err == nil {
			payload = compressed
			flags |= packEntryFlagZstd
		}
	}

	offset := p.CurrentOffset()
	header := packEntryHeader{Type: name.Type, Flags: flags, Length: uint64(len(payload))}
	if _, err := p.hashedW.Write(header.marshal()); err != nil {
		return fmt.Errorf("write pack entry header: %w", err)
	}
	if _, err := p.hashedW.Write(payload); err != nil {
		return fmt.Errorf("write pack entry %s: %w", name, err)
	}

	p.seen[name] = struct{}{}
	p.entries = append(p.entries, PackIndexEntry{Name: name, Offset: offset})
	return nil
}

// Finish returns the pack checksum and the index entries. No further entries
// may be written.
func (p *PackWriter) Finish() (Hash, []PackIndexEntry, error) {
	if p.finished {
		return "", nil, fmt.Errorf("pack writer already finished")
	}
	p.finished = true
	entries := make([]PackIndexEntry, len(p.entries))
	copy(entries, p.entries)
	return sumHex(p.hasher), entries, nil
}
