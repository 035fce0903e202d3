package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// On-disk payloads of file objects:
//
//	RawFile:             u32 header length | header | content
//	ArchivedFileMeta:    u8 codec | u64 content size | header
//	ArchivedFileContent: content compressed with codec
//
// header is MarshalFileHeader's encoding.

const (
	rawFilePrefixSize      = 4
	archivedMetaPrefixSize = 1 + 8
)

func splitRawFile(data []byte) (*FileInfo, []Xattr, []byte, error) {
	if len(data) < rawFilePrefixSize {
		return nil, nil, nil, structuralf(TypeRawFile, "truncated header length")
	}
	n := binary.BigEndian.Uint32(data)
	if uint64(n) > uint64(len(data)-rawFilePrefixSize) {
		return nil, nil, nil, structuralf(TypeRawFile, "header length %d exceeds object size", n)
	}
	headerEnd := rawFilePrefixSize + int(n)
	info, xattrs, err := UnmarshalFileHeader(data[rawFilePrefixSize:headerEnd])
	if err != nil {
		return nil, nil, nil, err
	}
	content := data[headerEnd:]
	info.Size = int64(len(content))
	return info, xattrs, content, nil
}

// ArchivedFileMeta is the decoded form of an ArchivedFileMeta object.
type ArchivedFileMeta struct {
	Codec  Codec
	Size   uint64
	Info   *FileInfo
	Xattrs []Xattr
}

// MarshalArchivedFileMeta encodes an ArchivedFileMeta object.
func MarshalArchivedFileMeta(m *ArchivedFileMeta) []byte {
	var e encoder
	e.u8(uint8(m.Codec))
	e.u64(m.Size)
	e.buf.Write(MarshalFileHeader(m.Info, m.Xattrs))
	return e.buf.Bytes()
}

// UnmarshalArchivedFileMeta decodes an ArchivedFileMeta object.
func UnmarshalArchivedFileMeta(data []byte) (*ArchivedFileMeta, error) {
	if len(data) < archivedMetaPrefixSize {
		return nil, structuralf(TypeArchivedFileMeta, "truncated prefix")
	}
	d := decoder{data: data[:archivedMetaPrefixSize]}
	m := &ArchivedFileMeta{
		Codec: Codec(d.u8()),
		Size:  d.u64(),
	}
	switch m.Codec {
	case CodecNone, CodecLZ4, CodecZstd:
	default:
		return nil, structuralf(TypeArchivedFileMeta, "unknown codec %d", m.Codec)
	}
	info, xattrs, err := UnmarshalFileHeader(data[archivedMetaPrefixSize:])
	if err != nil {
		return nil, err
	}
	info.Size = int64(m.Size)
	m.Info = info
	m.Xattrs = xattrs
	return m, nil
}

// WriteFile stores a file object built from info, xattrs and content, and
// returns its checksum. info.Size is ignored. Symlinks must have an empty
// content stream (nil is accepted).
func (s *Store) WriteFile(info *FileInfo, xattrs []Xattr, content io.Reader) (Hash, error) {
	if err := ValidateFileMode(info.Mode); err != nil {
		return "", err
	}
	if content == nil {
		content = bytes.NewReader(nil)
	}
	header := MarshalFileHeader(info, xattrs)

	if s.opts.Mode == ModeArchive {
		return s.writeArchivedFile(info, xattrs, header, content)
	}
	return s.writeRawFile(info, header, content)
}

func (s *Store) writeRawFile(info *FileInfo, header []byte, content io.Reader) (Hash, error) {
	dir := s.objectsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("file write mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-file-*")
	if err != nil {
		return "", fmt.Errorf("file write tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpName)
		}
	}()

	var prefix [rawFilePrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(header)))
	if _, err := tmp.Write(prefix[:]); err != nil {
		tmp.Close()
		return "", fmt.Errorf("file write header: %w", err)
	}
	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		return "", fmt.Errorf("file write header: %w", err)
	}

	hasher := newFileHasher(s.opts.Algorithm, header)
	n, err := io.Copy(io.MultiWriter(tmp, hasher), content)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("file write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("file write close: %w", err)
	}
	if info.IsSymlink() && n != 0 {
		return "", structuralf(TypeRawFile, "symlink with %d content bytes", n)
	}

	h := sumHex(hasher)
	name := ObjectName{Checksum: h, Type: TypeRawFile}
	if s.HasLoose(name) {
		return h, nil
	}
	dest := s.LoosePath(name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("file write mkdir: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", fmt.Errorf("file write rename: %w", err)
	}
	renamed = true
	return h, nil
}

func (s *Store) writeArchivedFile(info *FileInfo, xattrs []Xattr, header []byte, content io.Reader) (Hash, error) {
	hasher := newFileHasher(s.opts.Algorithm, header)
	raw, err := io.ReadAll(io.TeeReader(content, hasher))
	if err != nil {
		return "", fmt.Errorf("file write content: %w", err)
	}
	if info.IsSymlink() && len(raw) != 0 {
		return "", structuralf(TypeRawFile, "symlink with %d content bytes", len(raw))
	}
	h := sumHex(hasher)

	compressed, codec, err := compressContent(raw, s.opts.Codec)
	if err != nil {
		return "", fmt.Errorf("file write compress: %w", err)
	}
	meta := MarshalArchivedFileMeta(&ArchivedFileMeta{
		Codec:  codec,
		Size:   uint64(len(raw)),
		Info:   info,
		Xattrs: xattrs,
	})

	// Content goes first so a visible meta object never points at missing
	// content.
	if err := s.writeLoose(ObjectName{Checksum: h, Type: TypeArchivedFileContent}, compressed); err != nil {
		return "", err
	}
	if err := s.writeLoose(ObjectName{Checksum: h, Type: TypeArchivedFileMeta}, meta); err != nil {
		return "", err
	}
	return h, nil
}

// LoadFile resolves a RawFile or ArchivedFileMeta object and returns its
// content stream, metadata and xattrs. The header is structurally validated.
// The caller must close the returned stream.
func (s *Store) LoadFile(name ObjectName) (io.ReadCloser, *FileInfo, []Xattr, error) {
	var (
		rc     io.ReadCloser
		info   *FileInfo
		xattrs []Xattr
		err    error
	)
	switch name.Type {
	case TypeRawFile:
		rc, info, xattrs, err = s.loadRawFile(name)
	case TypeArchivedFileMeta:
		rc, info, xattrs, err = s.loadArchivedFile(name)
	default:
		return nil, nil, nil, fmt.Errorf("load file %s: not a file object type", name)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ValidateFileInfo(info, xattrs); err != nil {
		rc.Close()
		return nil, nil, nil, withName(err, name)
	}
	return rc, info, xattrs, nil
}

// looseFileReader streams the content part of a loose RawFile.
type looseFileReader struct {
	io.Reader
	f *os.File
}

func (r *looseFileReader) Close() error {
	return r.f.Close()
}

func (s *Store) loadRawFile(name ObjectName) (io.ReadCloser, *FileInfo, []Xattr, error) {
	if err := ValidateChecksum(name.Checksum); err != nil {
		return nil, nil, nil, fmt.Errorf("load file %s: %w", name, err)
	}
	f, err := os.Open(s.LoosePath(name))
	if errors.Is(err, fs.ErrNotExist) {
		data, _, ok, perr := s.readPacked(name)
		if perr != nil {
			return nil, nil, nil, perr
		}
		if !ok {
			return nil, nil, nil, fmt.Errorf("load file %s: %w", name, ErrObjectNotFound)
		}
		info, xattrs, content, err := splitRawFile(data)
		if err != nil {
			return nil, nil, nil, withName(err, name)
		}
		return io.NopCloser(bytes.NewReader(content)), info, xattrs, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load file %s: %w", name, err)
	}

	info, xattrs, err := readRawFileHeader(f, name)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}
	return &looseFileReader{Reader: io.LimitReader(f, info.Size), f: f}, info, xattrs, nil
}

func readRawFileHeader(f *os.File, name ObjectName) (*FileInfo, []Xattr, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("load file %s: %w", name, err)
	}
	var prefix [rawFilePrefixSize]byte
	if _, err := io.ReadFull(f, prefix[:]); err != nil {
		return nil, nil, withName(structuralf(TypeRawFile, "read header length: %v", err), name)
	}
	n := int64(binary.BigEndian.Uint32(prefix[:]))
	if n > st.Size()-rawFilePrefixSize {
		return nil, nil, withName(structuralf(TypeRawFile, "header length %d exceeds object size", n), name)
	}
	header := make([]byte, n)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, nil, fmt.Errorf("load file %s: read header: %w", name, err)
	}
	info, xattrs, err := UnmarshalFileHeader(header)
	if err != nil {
		return nil, nil, withName(err, name)
	}
	info.Size = st.Size() - rawFilePrefixSize - n
	return info, xattrs, nil
}

func (s *Store) loadArchivedFile(name ObjectName) (io.ReadCloser, *FileInfo, []Xattr, error) {
	metaData, err := s.ReadRaw(name)
	if err != nil {
		return nil, nil, nil, err
	}
	meta, err := UnmarshalArchivedFileMeta(metaData)
	if err != nil {
		return nil, nil, nil, withName(err, name)
	}

	contentName := ObjectName{Checksum: name.Checksum, Type: TypeArchivedFileContent}
	compressed, err := s.ReadRaw(contentName)
	if err != nil {
		return nil, nil, nil, err
	}
	content, err := decompressContent(compressed, meta.Codec, meta.Size)
	if err != nil {
		return nil, nil, nil, &CorruptContentError{Name: name, Err: fmt.Errorf("%s: %w", contentName.Type, err)}
	}
	return io.NopCloser(bytes.NewReader(content)), meta.Info, meta.Xattrs, nil
}
