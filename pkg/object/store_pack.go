package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

const (
	packFilePrefix   = "pack-"
	packIndexSuffix  = ".idx"
	packDataSuffix   = ".pack"
	packDirName      = "pack"
	packTempPattern  = ".tmp-pack-*"
	packReadChunkLen = 1 << 20
)

func (s *Store) packDir() string {
	return filepath.Join(s.objectsDir(), packDirName)
}

// PackIndexPath returns the index file path of a pack.
func (s *Store) PackIndexPath(h Hash) string {
	return filepath.Join(s.packDir(), packFilePrefix+string(h)+packIndexSuffix)
}

// PackDataPath returns the data file path of a pack.
func (s *Store) PackDataPath(h Hash) string {
	return filepath.Join(s.packDir(), packFilePrefix+string(h)+packDataSuffix)
}

// ListPackChecksums returns the checksums of every pack with an index file,
// in sorted order.
func (s *Store) ListPackChecksums() ([]Hash, error) {
	entries, err := os.ReadDir(s.packDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	var out []Hash
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, packFilePrefix) || !strings.HasSuffix(name, packIndexSuffix) {
			continue
		}
		h := Hash(strings.TrimSuffix(strings.TrimPrefix(name, packFilePrefix), packIndexSuffix))
		if ValidateChecksum(h) != nil {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ReadPackIndex loads and validates the index of a pack. The checksum the
// index declares must equal the one in its file name.
func (s *Store) ReadPackIndex(h Hash) (*PackIndex, error) {
	s.mu.Lock()
	cached, ok := s.packIndexes[h]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	path := s.PackIndexPath(h)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack index %s: %w", filepath.Base(path), err)
	}
	idx, err := ParsePackIndex(data)
	if err != nil {
		return nil, &PackCorruptError{Pack: h, Reason: PackReasonIndex, Path: path, Detail: err.Error()}
	}
	if idx.PackChecksum != h {
		return nil, &PackCorruptError{
			Pack:   h,
			Reason: PackReasonIndex,
			Path:   path,
			Detail: fmt.Sprintf("index declares pack checksum %s", idx.PackChecksum),
		}
	}

	s.mu.Lock()
	if s.packIndexes == nil {
		s.packIndexes = make(map[Hash]*PackIndex)
	}
	s.packIndexes[h] = idx
	s.mu.Unlock()
	return idx, nil
}

// VerifyPack checks the structural soundness of one pack: the digest of its
// data file must equal the pack checksum, and every offset in its index must
// lie within the data file. Per-object lengths are not checked here.
func (s *Store) VerifyPack(ctx context.Context, h Hash) error {
	idx, err := s.ReadPackIndex(h)
	if err != nil {
		return err
	}

	dataPath := s.PackDataPath(h)
	f, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("verify pack %s: %w", h, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("verify pack %s: %w", h, err)
	}
	size := uint64(st.Size())

	actual, err := checksumReaderContext(ctx, s.opts.Algorithm, f)
	if err != nil {
		return fmt.Errorf("verify pack %s: read %s: %w", h, dataPath, err)
	}
	if actual != h {
		return &PackCorruptError{
			Pack:   h,
			Reason: PackReasonContentChecksum,
			Path:   dataPath,
			Detail: fmt.Sprintf("actual checksum %s", actual),
		}
	}

	for _, entry := range idx.entries {
		if entry.Offset > size {
			return &PackCorruptError{
				Pack:   h,
				Reason: PackReasonOffsetRange,
				Path:   s.PackIndexPath(h),
				Detail: fmt.Sprintf("%s at offset %d larger than file size %d", entry.Name, entry.Offset, size),
			}
		}
	}
	return nil
}

// checksumReaderContext hashes r in chunks, checking ctx between chunks.
func checksumReaderContext(ctx context.Context, alg Algorithm, r io.Reader) (Hash, error) {
	h := alg.New()
	buf := make([]byte, packReadChunkLen)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			return sumHex(h), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// cachedPackChecksums returns the pack list, reading the pack directory only
// on first use or when refresh is set.
func (s *Store) cachedPackChecksums(refresh bool) ([]Hash, error) {
	s.mu.Lock()
	if s.packListOK && !refresh {
		packs := s.packList
		s.mu.Unlock()
		return packs, nil
	}
	s.mu.Unlock()

	packs, err := s.ListPackChecksums()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.packList, s.packListOK = packs, true
	s.mu.Unlock()
	return packs, nil
}

func (s *Store) forgetPackList() {
	s.mu.Lock()
	s.packList, s.packListOK = nil, false
	s.mu.Unlock()
}

// findPacked returns the first pack (in checksum order) that indexes name.
// A miss rereads the pack directory once in case a pack was added since the
// list was cached.
func (s *Store) findPacked(name ObjectName) (Hash, uint64, bool, error) {
	packs, err := s.cachedPackChecksums(false)
	if err != nil {
		return "", 0, false, err
	}
	pack, off, ok, err := s.searchPacks(packs, name)
	if ok || err != nil {
		return pack, off, ok, err
	}
	fresh, err := s.cachedPackChecksums(true)
	if err != nil {
		return "", 0, false, err
	}
	if slices.Equal(fresh, packs) {
		return "", 0, false, nil
	}
	return s.searchPacks(fresh, name)
}

func (s *Store) searchPacks(packs []Hash, name ObjectName) (Hash, uint64, bool, error) {
	for _, pack := range packs {
		idx, err := s.ReadPackIndex(pack)
		if err != nil {
			return "", 0, false, err
		}
		if off, ok := idx.Find(name); ok {
			return pack, off, true, nil
		}
	}
	return "", 0, false, nil
}

// readPacked returns the loose bytes of a packed object.
func (s *Store) readPacked(name ObjectName) ([]byte, Hash, bool, error) {
	pack, offset, ok, err := s.findPacked(name)
	if err != nil || !ok {
		return nil, "", ok, err
	}

	path := s.PackDataPath(pack)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", false, fmt.Errorf("object read %s: open pack: %w", name, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, "", false, fmt.Errorf("object read %s: %w", name, err)
	}

	t, data, err := ReadPackEntryAt(f, st.Size(), offset)
	if err != nil {
		return nil, "", false, s.packEntryError(pack, name, err)
	}
	if t != name.Type {
		return nil, "", false, &PackCorruptError{
			Pack:   pack,
			Reason: PackReasonEntry,
			Path:   path,
			Detail: fmt.Sprintf("%s: entry type is %s", name, t),
		}
	}
	return data, pack, true, nil
}

// packEntryError classifies a failure to decode a packed entry. Bad offsets
// and undecodable entries are pack corruption; anything else is I/O.
func (s *Store) packEntryError(pack Hash, name ObjectName, err error) error {
	switch {
	case errors.Is(err, errPackEntryRange):
		return &PackCorruptError{
			Pack:   pack,
			Reason: PackReasonOffsetRange,
			Path:   s.PackIndexPath(pack),
			Detail: fmt.Sprintf("%s: %v", name, err),
		}
	case errors.Is(err, errPackEntryInvalid):
		return &PackCorruptError{
			Pack:   pack,
			Reason: PackReasonEntry,
			Path:   s.PackDataPath(pack),
			Detail: fmt.Sprintf("%s: %v", name, err),
		}
	}
	return fmt.Errorf("object read %s from pack %s: %w", name, pack, err)
}

// PackOptions controls PackObjects.
type PackOptions struct {
	// Compress stores entries zstd-compressed when that makes them smaller.
	Compress bool
	// Prune removes the loose copies once the pack and index are in place.
	Prune bool
}

// PackSummary reports the outcome of PackObjects.
type PackSummary struct {
	Pack          Hash
	PackedObjects int
	PrunedObjects int
	PackFile      string
	IndexFile     string
}

// PackObjects consolidates every loose object that no existing pack indexes
// into a new pack. The data file is written and checksummed first, then
// renamed into place, then the index is written; a crash in between leaves at
// worst an unindexed data file that enumeration ignores.
func (s *Store) PackObjects(ctx context.Context, opts PackOptions) (*PackSummary, error) {
	loose, err := s.listLooseObjects(ctx)
	if err != nil {
		return nil, err
	}
	packed, err := s.ListObjects(ctx, ListPacked)
	if err != nil {
		return nil, err
	}

	toPack := make([]ObjectName, 0, len(loose))
	for _, name := range loose {
		if _, ok := packed[name]; ok {
			continue
		}
		toPack = append(toPack, name)
	}
	if len(toPack) == 0 {
		return &PackSummary{}, nil
	}

	packDir := s.packDir()
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return nil, fmt.Errorf("pack: mkdir pack dir: %w", err)
	}

	packTmp, err := os.CreateTemp(packDir, packTempPattern+packDataSuffix)
	if err != nil {
		return nil, fmt.Errorf("pack: create data temp file: %w", err)
	}
	packTmpPath := packTmp.Name()
	packTmpRemoved := false
	defer func() {
		if !packTmpRemoved {
			_ = os.Remove(packTmpPath)
		}
	}()

	pw, err := NewPackWriter(packTmp, s.opts.Algorithm, opts.Compress)
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("pack: create pack writer: %w", err)
	}
	for _, name := range toPack {
		if err := ctx.Err(); err != nil {
			_ = packTmp.Close()
			return nil, err
		}
		data, err := s.ReadLoose(name)
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("pack: %w", err)
		}
		if err := pw.WriteEntry(name, data); err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("pack: %w", err)
		}
	}
	if err := packTmp.Sync(); err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("pack: sync data file: %w", err)
	}
	if err := packTmp.Close(); err != nil {
		return nil, fmt.Errorf("pack: close data file: %w", err)
	}
	packChecksum, entries, err := pw.Finish()
	if err != nil {
		return nil, fmt.Errorf("pack: finalize: %w", err)
	}

	packPath := s.PackDataPath(packChecksum)
	idxPath := s.PackIndexPath(packChecksum)
	if err := os.Rename(packTmpPath, packPath); err != nil {
		return nil, fmt.Errorf("pack: rename data file: %w", err)
	}
	packTmpRemoved = true

	idxTmp, err := os.CreateTemp(packDir, packTempPattern+packIndexSuffix)
	if err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("pack: create index temp file: %w", err)
	}
	idxTmpPath := idxTmp.Name()
	idxTmpRemoved := false
	defer func() {
		if !idxTmpRemoved {
			_ = os.Remove(idxTmpPath)
		}
	}()

	if err := WritePackIndex(idxTmp, packChecksum, entries); err != nil {
		_ = idxTmp.Close()
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("pack: %w", err)
	}
	if err := idxTmp.Close(); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("pack: close index file: %w", err)
	}
	if err := os.Rename(idxTmpPath, idxPath); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("pack: rename index file: %w", err)
	}
	idxTmpRemoved = true
	s.forgetPackList()

	summary := &PackSummary{
		Pack:          packChecksum,
		PackedObjects: len(toPack),
		PackFile:      filepath.Base(packPath),
		IndexFile:     filepath.Base(idxPath),
	}
	if opts.Prune {
		for _, name := range toPack {
			if err := s.DeleteLoose(name); err != nil {
				return summary, fmt.Errorf("pack: prune: %w", err)
			}
			summary.PrunedObjects++
		}
	}
	return summary, nil
}
