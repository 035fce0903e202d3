package object

import (
	"fmt"
	"sort"
	"strings"
)

// Hash is a 64-character hex-encoded 32-byte digest.
type Hash string

// ObjectType identifies the kind of object stored. The numeric values are
// part of the pack index and pack data formats.
type ObjectType uint8

const (
	TypeRawFile             ObjectType = 1
	TypeArchivedFileContent ObjectType = 2
	TypeArchivedFileMeta    ObjectType = 3
	TypeDirTree             ObjectType = 4
	TypeDirMeta             ObjectType = 5
	TypeCommit              ObjectType = 6
)

// String returns the type name, which doubles as the loose object file
// extension.
func (t ObjectType) String() string {
	switch t {
	case TypeRawFile:
		return "file"
	case TypeArchivedFileContent:
		return "filez"
	case TypeArchivedFileMeta:
		return "filemeta"
	case TypeDirTree:
		return "dirtree"
	case TypeDirMeta:
		return "dirmeta"
	case TypeCommit:
		return "commit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseObjectType is the inverse of ObjectType.String.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "file":
		return TypeRawFile, nil
	case "filez":
		return TypeArchivedFileContent, nil
	case "filemeta":
		return TypeArchivedFileMeta, nil
	case "dirtree":
		return TypeDirTree, nil
	case "dirmeta":
		return TypeDirMeta, nil
	case "commit":
		return TypeCommit, nil
	default:
		return 0, fmt.Errorf("unknown object type %q", s)
	}
}

// Valid reports whether t is one of the defined object types.
func (t ObjectType) Valid() bool {
	return t >= TypeRawFile && t <= TypeCommit
}

// IsMetadata reports whether t is a commit, dirtree or dirmeta.
func (t ObjectType) IsMetadata() bool {
	return t == TypeCommit || t == TypeDirTree || t == TypeDirMeta
}

// ObjectName is the store's primary key: a checksum paired with its declared
// type. It is comparable and can be used directly as a map key.
type ObjectName struct {
	Checksum Hash
	Type     ObjectType
}

// String renders the name as "<checksum>.<type>".
func (n ObjectName) String() string {
	return string(n.Checksum) + "." + n.Type.String()
}

// Less orders names by checksum, then by type.
func (n ObjectName) Less(o ObjectName) bool {
	if n.Checksum != o.Checksum {
		return n.Checksum < o.Checksum
	}
	return n.Type < o.Type
}

// ParseObjectName parses the "<checksum>.<type>" form.
func ParseObjectName(s string) (ObjectName, error) {
	sum, typ, ok := strings.Cut(s, ".")
	if !ok {
		return ObjectName{}, fmt.Errorf("object name %q: missing type suffix", s)
	}
	if err := ValidateChecksum(Hash(sum)); err != nil {
		return ObjectName{}, fmt.Errorf("object name %q: %w", s, err)
	}
	t, err := ParseObjectType(typ)
	if err != nil {
		return ObjectName{}, fmt.Errorf("object name %q: %w", s, err)
	}
	return ObjectName{Checksum: Hash(sum), Type: t}, nil
}

// SortObjectNames sorts names in place using ObjectName.Less.
func SortObjectNames(names []ObjectName) {
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
}

// Posix file type bits. Kept here rather than taken from syscall so the
// encoding is identical on every platform.
const (
	ModeTypeMask  uint32 = 0o170000
	ModeDir       uint32 = 0o040000
	ModeRegular   uint32 = 0o100000
	ModeSymlink   uint32 = 0o120000
	ModePermMask  uint32 = 0o7777
	modeValidMask        = ModeTypeMask | ModePermMask
)

// Xattr is one extended attribute.
type Xattr struct {
	Name  string
	Value []byte
}

// FileInfo is the POSIX metadata stored in a file object header.
type FileInfo struct {
	UID           uint32
	GID           uint32
	Mode          uint32
	Rdev          uint32
	SymlinkTarget string
	// Size is the content length. It is not part of the header encoding; it
	// is filled in when a file object is loaded.
	Size int64
}

// IsSymlink reports whether the mode describes a symbolic link.
func (fi *FileInfo) IsSymlink() bool {
	return fi.Mode&ModeTypeMask == ModeSymlink
}

// CommitObj is the root of a tree snapshot.
type CommitObj struct {
	// Metadata is an arbitrary dictionary, serialized as canonical CBOR.
	Metadata  map[string]any
	Parent    Hash // empty for a root commit
	Subject   string
	Body      string
	Timestamp uint64
	RootTree  Hash
	RootMeta  Hash
}

// DirTreeFile is a file entry in a DirTree.
type DirTreeFile struct {
	Name     string
	Checksum Hash
}

// DirTreeDir is a subdirectory entry in a DirTree.
type DirTreeDir struct {
	Name         string
	TreeChecksum Hash
	MetaChecksum Hash
}

// DirTreeObj holds the files and subdirectories of one directory, each list
// sorted by name.
type DirTreeObj struct {
	Files []DirTreeFile
	Dirs  []DirTreeDir
}

// DirMetaObj holds the POSIX metadata of a directory.
type DirMetaObj struct {
	UID    uint32
	GID    uint32
	Mode   uint32
	Xattrs []Xattr
}
