package object

import (
	"fmt"
	"strings"
)

// ValidateFileMode checks that mode describes a regular file or symlink and
// carries no bits outside the type and permission masks.
func ValidateFileMode(mode uint32) error {
	if mode&^modeValidMask != 0 {
		return structuralf(TypeRawFile, "invalid mode 0%o: unknown bits set", mode)
	}
	switch mode & ModeTypeMask {
	case ModeRegular, ModeSymlink:
		return nil
	default:
		return structuralf(TypeRawFile, "invalid file mode 0%o: not a regular file or symlink", mode)
	}
}

// ValidateDirMode checks that mode describes a directory.
func ValidateDirMode(mode uint32) error {
	if mode&^modeValidMask != 0 {
		return structuralf(TypeDirMeta, "invalid mode 0%o: unknown bits set", mode)
	}
	if mode&ModeTypeMask != ModeDir {
		return structuralf(TypeDirMeta, "invalid directory mode 0%o", mode)
	}
	return nil
}

// ValidateFilename checks a single path component of a DirTree entry.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty filename")
	case name == "." || name == "..":
		return fmt.Errorf("invalid filename %q", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("invalid filename %q: contains '/' or NUL", name)
	}
	return nil
}

func validateXattrs(t ObjectType, xattrs []Xattr) error {
	for i, x := range xattrs {
		if x.Name == "" || strings.IndexByte(x.Name, 0) >= 0 {
			return structuralf(t, "invalid xattr name %q", x.Name)
		}
		if i > 0 && xattrs[i-1].Name >= x.Name {
			return structuralf(t, "xattrs not sorted at %q", x.Name)
		}
	}
	return nil
}

// ValidateFileInfo checks the decoded header of a file object.
func ValidateFileInfo(info *FileInfo, xattrs []Xattr) error {
	if err := ValidateFileMode(info.Mode); err != nil {
		return err
	}
	if info.IsSymlink() {
		if info.SymlinkTarget == "" {
			return structuralf(TypeRawFile, "symlink with empty target")
		}
		if info.Size != 0 {
			return structuralf(TypeRawFile, "symlink with %d content bytes", info.Size)
		}
	} else if info.SymlinkTarget != "" {
		return structuralf(TypeRawFile, "regular file with symlink target")
	}
	return validateXattrs(TypeRawFile, xattrs)
}

// ValidateDirMeta checks a decoded DirMeta.
func ValidateDirMeta(m *DirMetaObj) error {
	if err := ValidateDirMode(m.Mode); err != nil {
		return err
	}
	return validateXattrs(TypeDirMeta, m.Xattrs)
}

// ValidateDirTree checks names and canonical ordering of a decoded DirTree.
func ValidateDirTree(tr *DirTreeObj) error {
	for i, f := range tr.Files {
		if err := ValidateFilename(f.Name); err != nil {
			return structuralf(TypeDirTree, "file entry: %v", err)
		}
		if i > 0 && tr.Files[i-1].Name >= f.Name {
			return structuralf(TypeDirTree, "file entries not sorted at %q", f.Name)
		}
		if f.Checksum == "" {
			return structuralf(TypeDirTree, "file %q has no checksum", f.Name)
		}
	}
	for i, sub := range tr.Dirs {
		if err := ValidateFilename(sub.Name); err != nil {
			return structuralf(TypeDirTree, "dir entry: %v", err)
		}
		if i > 0 && tr.Dirs[i-1].Name >= sub.Name {
			return structuralf(TypeDirTree, "dir entries not sorted at %q", sub.Name)
		}
		if sub.TreeChecksum == "" || sub.MetaChecksum == "" {
			return structuralf(TypeDirTree, "dir %q is missing a checksum", sub.Name)
		}
	}
	return nil
}

// ValidateCommit checks a decoded commit.
func ValidateCommit(c *CommitObj) error {
	if c.RootTree == "" {
		return structuralf(TypeCommit, "missing root tree")
	}
	if c.RootMeta == "" {
		return structuralf(TypeCommit, "missing root metadata")
	}
	return nil
}

// ValidateStructure decodes data as an object of type t and checks every
// structural invariant of that type. File types are validated through their
// header; ArchivedFileContent has no structure of its own.
func ValidateStructure(t ObjectType, data []byte) error {
	switch t {
	case TypeCommit:
		c, err := UnmarshalCommit(data)
		if err != nil {
			return err
		}
		return ValidateCommit(c)
	case TypeDirTree:
		tr, err := UnmarshalDirTree(data)
		if err != nil {
			return err
		}
		return ValidateDirTree(tr)
	case TypeDirMeta:
		m, err := UnmarshalDirMeta(data)
		if err != nil {
			return err
		}
		return ValidateDirMeta(m)
	case TypeRawFile:
		info, xattrs, _, err := splitRawFile(data)
		if err != nil {
			return err
		}
		return ValidateFileInfo(info, xattrs)
	case TypeArchivedFileMeta:
		meta, err := UnmarshalArchivedFileMeta(data)
		if err != nil {
			return err
		}
		return ValidateFileInfo(meta.Info, meta.Xattrs)
	case TypeArchivedFileContent:
		return nil
	default:
		return structuralf(t, "unknown object type")
	}
}
