package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// All object encodings are big-endian. Variable-length fields are a u32
// length followed by the bytes; checksum fields are a u32 length of 0 or 32
// followed by the raw digest.

type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) u8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) checksum(field string, h Hash) {
	if h == "" {
		e.u32(0)
		return
	}
	raw, err := hashHexToBytes(h)
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("%s: %w", field, err)
		}
		e.u32(0)
		return
	}
	e.bytes(raw)
}

type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = fmt.Errorf("truncated at offset %d (need %d bytes)", d.off, n)
		return false
	}
	return true
}

func (d *decoder) u8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.data[d.off]
	d.off++
	return v
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v
}

func (d *decoder) bytes() []byte {
	n := d.u32()
	if !d.need(int(n)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, d.data[d.off:d.off+int(n)])
	d.off += int(n)
	return out
}

func (d *decoder) str() string {
	return string(d.bytes())
}

func (d *decoder) checksum(field string) Hash {
	raw := d.bytes()
	if d.err != nil || len(raw) == 0 {
		return ""
	}
	h, err := hashFromBytes(raw)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", field, err)
		return ""
	}
	return h
}

// count reads an element count and rejects counts that could not fit in the
// remaining bytes, so a corrupt count cannot force a huge allocation.
func (d *decoder) count(minElemSize int) int {
	n := int(d.u32())
	if d.err != nil {
		return 0
	}
	if n > (len(d.data)-d.off)/minElemSize {
		d.err = fmt.Errorf("element count %d exceeds remaining data", n)
		return 0
	}
	return n
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("%d trailing bytes", len(d.data)-d.off)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Xattrs
// ---------------------------------------------------------------------------

func sortedXattrs(xattrs []Xattr) []Xattr {
	out := make([]Xattr, len(xattrs))
	copy(out, xattrs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *encoder) xattrs(xattrs []Xattr) {
	sorted := sortedXattrs(xattrs)
	e.u32(uint32(len(sorted)))
	for _, x := range sorted {
		e.str(x.Name)
		e.bytes(x.Value)
	}
}

func (d *decoder) xattrs() []Xattr {
	n := d.count(8)
	if n == 0 {
		return nil
	}
	out := make([]Xattr, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		name := d.str()
		value := d.bytes()
		out = append(out, Xattr{Name: name, Value: value})
	}
	return out
}

// ---------------------------------------------------------------------------
// File header
// ---------------------------------------------------------------------------

// MarshalFileHeader encodes the metadata part of a file object:
//
//	uid u32 | gid u32 | mode u32 | rdev u32 | symlink target | xattrs
func MarshalFileHeader(info *FileInfo, xattrs []Xattr) []byte {
	var e encoder
	e.u32(info.UID)
	e.u32(info.GID)
	e.u32(info.Mode)
	e.u32(info.Rdev)
	e.str(info.SymlinkTarget)
	e.xattrs(xattrs)
	return e.buf.Bytes()
}

// UnmarshalFileHeader decodes a file header.
func UnmarshalFileHeader(data []byte) (*FileInfo, []Xattr, error) {
	d := decoder{data: data}
	info := &FileInfo{
		UID:  d.u32(),
		GID:  d.u32(),
		Mode: d.u32(),
		Rdev: d.u32(),
	}
	info.SymlinkTarget = d.str()
	xattrs := d.xattrs()
	if err := d.finish(); err != nil {
		return nil, nil, structuralf(TypeRawFile, "decode header: %v", err)
	}
	return info, xattrs, nil
}

// ---------------------------------------------------------------------------
// DirMeta
// ---------------------------------------------------------------------------

// MarshalDirMeta encodes a DirMeta:
//
//	uid u32 | gid u32 | mode u32 | xattrs
func MarshalDirMeta(m *DirMetaObj) []byte {
	var e encoder
	e.u32(m.UID)
	e.u32(m.GID)
	e.u32(m.Mode)
	e.xattrs(m.Xattrs)
	return e.buf.Bytes()
}

// UnmarshalDirMeta decodes a DirMeta. It does not validate invariants; see
// ValidateDirMeta.
func UnmarshalDirMeta(data []byte) (*DirMetaObj, error) {
	d := decoder{data: data}
	m := &DirMetaObj{
		UID:  d.u32(),
		GID:  d.u32(),
		Mode: d.u32(),
	}
	m.Xattrs = d.xattrs()
	if err := d.finish(); err != nil {
		return nil, structuralf(TypeDirMeta, "decode: %v", err)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// DirTree
// ---------------------------------------------------------------------------

// MarshalDirTree encodes a DirTree. Both lists are sorted by name so that
// semantically identical trees produce identical bytes:
//
//	u32 nfiles | (name, checksum)* | u32 ndirs | (name, tree, meta)*
func MarshalDirTree(tr *DirTreeObj) ([]byte, error) {
	files := make([]DirTreeFile, len(tr.Files))
	copy(files, tr.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	dirs := make([]DirTreeDir, len(tr.Dirs))
	copy(dirs, tr.Dirs)
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })

	for i := 1; i < len(files); i++ {
		if files[i].Name == files[i-1].Name {
			return nil, structuralf(TypeDirTree, "duplicate file name %q", files[i].Name)
		}
	}
	for i := 1; i < len(dirs); i++ {
		if dirs[i].Name == dirs[i-1].Name {
			return nil, structuralf(TypeDirTree, "duplicate directory name %q", dirs[i].Name)
		}
	}

	var e encoder
	e.u32(uint32(len(files)))
	for _, f := range files {
		e.str(f.Name)
		e.checksum("file "+f.Name, f.Checksum)
	}
	e.u32(uint32(len(dirs)))
	for _, sub := range dirs {
		e.str(sub.Name)
		e.checksum("dir "+sub.Name+" tree", sub.TreeChecksum)
		e.checksum("dir "+sub.Name+" meta", sub.MetaChecksum)
	}
	if e.err != nil {
		return nil, structuralf(TypeDirTree, "%v", e.err)
	}
	return e.buf.Bytes(), nil
}

// UnmarshalDirTree decodes a DirTree without reordering entries, so
// ValidateDirTree can detect non-canonical input.
func UnmarshalDirTree(data []byte) (*DirTreeObj, error) {
	d := decoder{data: data}
	tr := &DirTreeObj{}

	nfiles := d.count(8)
	if nfiles > 0 {
		tr.Files = make([]DirTreeFile, 0, nfiles)
	}
	for i := 0; i < nfiles && d.err == nil; i++ {
		name := d.str()
		sum := d.checksum("file " + name)
		tr.Files = append(tr.Files, DirTreeFile{Name: name, Checksum: sum})
	}

	ndirs := d.count(12)
	if ndirs > 0 {
		tr.Dirs = make([]DirTreeDir, 0, ndirs)
	}
	for i := 0; i < ndirs && d.err == nil; i++ {
		name := d.str()
		tree := d.checksum("dir " + name + " tree")
		meta := d.checksum("dir " + name + " meta")
		tr.Dirs = append(tr.Dirs, DirTreeDir{Name: name, TreeChecksum: tree, MetaChecksum: meta})
	}

	if err := d.finish(); err != nil {
		return nil, structuralf(TypeDirTree, "decode: %v", err)
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit encodes a commit:
//
//	metadata (canonical CBOR) | parent | subject | body | timestamp u64 |
//	root tree | root meta
func MarshalCommit(c *CommitObj) ([]byte, error) {
	meta, err := MarshalCommitMetadata(c.Metadata)
	if err != nil {
		return nil, structuralf(TypeCommit, "metadata: %v", err)
	}

	var e encoder
	e.bytes(meta)
	e.checksum("parent", c.Parent)
	e.str(c.Subject)
	e.str(c.Body)
	e.u64(c.Timestamp)
	e.checksum("root tree", c.RootTree)
	e.checksum("root meta", c.RootMeta)
	if e.err != nil {
		return nil, structuralf(TypeCommit, "%v", e.err)
	}
	return e.buf.Bytes(), nil
}

// UnmarshalCommit decodes a commit.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	d := decoder{data: data}
	rawMeta := d.bytes()
	c := &CommitObj{}
	c.Parent = d.checksum("parent")
	c.Subject = d.str()
	c.Body = d.str()
	c.Timestamp = d.u64()
	c.RootTree = d.checksum("root tree")
	c.RootMeta = d.checksum("root meta")
	if err := d.finish(); err != nil {
		return nil, structuralf(TypeCommit, "decode: %v", err)
	}

	meta, err := UnmarshalCommitMetadata(rawMeta)
	if err != nil {
		return nil, structuralf(TypeCommit, "metadata: %v", err)
	}
	c.Metadata = meta
	return c, nil
}
