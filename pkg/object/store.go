package object

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Mode selects how file objects are persisted.
type Mode string

const (
	// ModeBare stores each file as one RawFile object.
	ModeBare Mode = "bare"
	// ModeArchive stores each file as an ArchivedFileMeta object plus a
	// compressed ArchivedFileContent object under the same checksum.
	ModeArchive Mode = "archive"
)

// ParseMode validates a repository mode name. The empty string selects
// ModeBare.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBare, nil
	case ModeBare, ModeArchive:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown repository mode %q", s)
	}
}

// FileObjectTypes returns the object types a DirTree file entry resolves to
// in this mode.
func (m Mode) FileObjectTypes() []ObjectType {
	if m == ModeArchive {
		return []ObjectType{TypeArchivedFileMeta, TypeArchivedFileContent}
	}
	return []ObjectType{TypeRawFile}
}

// FileObjectType returns the type LoadFile expects for a file in this mode.
func (m Mode) FileObjectType() ObjectType {
	if m == ModeArchive {
		return TypeArchivedFileMeta
	}
	return TypeRawFile
}

// StoreOptions are the repository-wide constants a Store needs.
type StoreOptions struct {
	Mode      Mode
	Algorithm Algorithm
	Codec     Codec
}

// Store is a content-addressed object store with a 2-character fan-out
// directory layout partitioned by type:
//
//	objects/ab/cdef0123....<type>
//
// plus any number of packs under objects/pack/.
type Store struct {
	root string
	opts StoreOptions

	mu          sync.Mutex
	packIndexes map[Hash]*PackIndex
	packList    []Hash
	packListOK  bool
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string, opts StoreOptions) *Store {
	if opts.Mode == "" {
		opts.Mode = ModeBare
	}
	if opts.Algorithm == "" {
		opts.Algorithm = DefaultAlgorithm
	}
	return &Store{root: root, opts: opts}
}

// Root returns the directory the store was opened on.
func (s *Store) Root() string { return s.root }

// Mode returns the repository mode.
func (s *Store) Mode() Mode { return s.opts.Mode }

// Algorithm returns the checksum algorithm.
func (s *Store) Algorithm() Algorithm { return s.opts.Algorithm }

func (s *Store) objectsDir() string {
	return filepath.Join(s.root, "objects")
}

// LoosePath returns the filesystem path for a loose object.
func (s *Store) LoosePath(name ObjectName) string {
	h := string(name.Checksum)
	return filepath.Join(s.objectsDir(), h[:2], h[2:]+"."+name.Type.String())
}

// HasLoose reports whether a loose copy of the object exists.
func (s *Store) HasLoose(name ObjectName) bool {
	if ValidateChecksum(name.Checksum) != nil {
		return false
	}
	_, err := os.Stat(s.LoosePath(name))
	return err == nil
}

// Has reports whether the object exists loose or in any pack.
func (s *Store) Has(name ObjectName) (bool, error) {
	if s.HasLoose(name) {
		return true, nil
	}
	_, _, ok, err := s.findPacked(name)
	return ok, err
}

// writeLoose stores data under name. Writes are atomic: data is written to a
// temp file in the fan-out directory and then renamed into place.
func (s *Store) writeLoose(name ObjectName, data []byte) error {
	if s.HasLoose(name) {
		return nil
	}
	path := s.LoosePath(name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("object write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write rename: %w", err)
	}
	return nil
}

// ReadLoose returns the exact persisted bytes of a loose object.
func (s *Store) ReadLoose(name ObjectName) ([]byte, error) {
	if err := ValidateChecksum(name.Checksum); err != nil {
		return nil, fmt.Errorf("object read %s: %w", name, err)
	}
	data, err := os.ReadFile(s.LoosePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object read %s: %w: %w", name, ErrObjectNotFound, err)
		}
		return nil, fmt.Errorf("object read %s: %w", name, err)
	}
	return data, nil
}

// ReadRaw returns the persisted bytes of an object from the loose store or,
// failing that, the first pack that indexes it.
func (s *Store) ReadRaw(name ObjectName) ([]byte, error) {
	data, err := s.ReadLoose(name)
	if err == nil || !errors.Is(err, ErrObjectNotFound) {
		return data, err
	}
	data, _, ok, err := s.readPacked(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("object read %s: %w", name, ErrObjectNotFound)
	}
	return data, nil
}

// Locate returns a path identifying where an object is stored: the loose
// file when present, otherwise the data file of the pack holding it.
func (s *Store) Locate(name ObjectName) (string, error) {
	if s.HasLoose(name) {
		return s.LoosePath(name), nil
	}
	pack, _, ok, err := s.findPacked(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("locate %s: %w", name, ErrObjectNotFound)
	}
	return s.PackDataPath(pack), nil
}

// DeleteLoose removes the loose copy of an object. Packed copies are
// immutable and are never touched.
func (s *Store) DeleteLoose(name ObjectName) error {
	if err := ValidateChecksum(name.Checksum); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if err := os.Remove(s.LoosePath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w: %w", name, ErrObjectNotFound, err)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Metadata objects
// ---------------------------------------------------------------------------

// WriteMetadata validates and stores a commit, dirtree or dirmeta and returns
// its checksum.
func (s *Store) WriteMetadata(t ObjectType, data []byte) (Hash, error) {
	if !t.IsMetadata() {
		return "", fmt.Errorf("write metadata: %s is not a metadata type", t)
	}
	if err := ValidateStructure(t, data); err != nil {
		return "", err
	}
	h := ChecksumMetadata(s.opts.Algorithm, t, data)
	if err := s.writeLoose(ObjectName{Checksum: h, Type: t}, data); err != nil {
		return "", err
	}
	return h, nil
}

// LoadMetadata resolves a metadata object, validates its structure and
// returns its canonical bytes.
func (s *Store) LoadMetadata(name ObjectName) ([]byte, error) {
	if !name.Type.IsMetadata() {
		return nil, fmt.Errorf("load %s: not a metadata type", name)
	}
	data, err := s.ReadRaw(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateStructure(name.Type, data); err != nil {
		return nil, withName(err, name)
	}
	return data, nil
}

// withName attaches the object identity to a structural error.
func withName(err error, name ObjectName) error {
	var se *StructuralError
	if errors.As(err, &se) {
		return &StructuralError{Name: name, Err: se.Err}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	data, err := MarshalCommit(c)
	if err != nil {
		return "", err
	}
	return s.WriteMetadata(TypeCommit, data)
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.LoadMetadata(ObjectName{Checksum: h, Type: TypeCommit})
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

// WriteDirTree serializes and stores a DirTreeObj.
func (s *Store) WriteDirTree(tr *DirTreeObj) (Hash, error) {
	data, err := MarshalDirTree(tr)
	if err != nil {
		return "", err
	}
	return s.WriteMetadata(TypeDirTree, data)
}

// ReadDirTree reads and deserializes a DirTreeObj.
func (s *Store) ReadDirTree(h Hash) (*DirTreeObj, error) {
	data, err := s.LoadMetadata(ObjectName{Checksum: h, Type: TypeDirTree})
	if err != nil {
		return nil, err
	}
	return UnmarshalDirTree(data)
}

// WriteDirMeta serializes and stores a DirMetaObj.
func (s *Store) WriteDirMeta(m *DirMetaObj) (Hash, error) {
	return s.WriteMetadata(TypeDirMeta, MarshalDirMeta(m))
}

// ReadDirMeta reads and deserializes a DirMetaObj.
func (s *Store) ReadDirMeta(h Hash) (*DirMetaObj, error) {
	data, err := s.LoadMetadata(ObjectName{Checksum: h, Type: TypeDirMeta})
	if err != nil {
		return nil, err
	}
	return UnmarshalDirMeta(data)
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// ListFilter selects which backing stores ListObjects scans.
type ListFilter int

const (
	ListAll ListFilter = iota
	ListLoose
	ListPacked
)

// ObjectLocation records where an enumerated object was found.
type ObjectLocation struct {
	Loose bool
	Packs []Hash
}

// ListObjects enumerates every object currently present. An object stored
// both loose and in packs appears once with all locations recorded.
func (s *Store) ListObjects(ctx context.Context, filter ListFilter) (map[ObjectName]*ObjectLocation, error) {
	out := make(map[ObjectName]*ObjectLocation)

	if filter == ListAll || filter == ListLoose {
		names, err := s.listLooseObjects(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			out[name] = &ObjectLocation{Loose: true}
		}
	}

	if filter == ListAll || filter == ListPacked {
		packs, err := s.ListPackChecksums()
		if err != nil {
			return nil, err
		}
		for _, pack := range packs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			idx, err := s.ReadPackIndex(pack)
			if err != nil {
				return nil, err
			}
			for _, entry := range idx.Entries() {
				loc, ok := out[entry.Name]
				if !ok {
					loc = &ObjectLocation{}
					out[entry.Name] = loc
				}
				loc.Packs = append(loc.Packs, pack)
			}
		}
	}

	return out, nil
}

func (s *Store) listLooseObjects(ctx context.Context) ([]ObjectName, error) {
	objectsDir := s.objectsDir()
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	var names []ObjectName
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() {
			continue
		}
		prefix := fanoutDir.Name()
		if prefix == "pack" || !isHexHashComponent(prefix, 2) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(filepath.Join(objectsDir, prefix))
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			suffix, ext, ok := strings.Cut(entry.Name(), ".")
			if !ok || !isHexHashComponent(suffix, DigestSize*2-2) {
				continue
			}
			t, err := ParseObjectType(ext)
			if err != nil {
				continue
			}
			names = append(names, ObjectName{Checksum: Hash(prefix + suffix), Type: t})
		}
	}

	SortObjectNames(names)
	return names, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
