package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/bedrock/pkg/object"
)

// importer writes the objects for a directory tree into a store.
type importer struct {
	store     *object.Store
	canonical bool
	files     int
	dirs      int
}

// importDir recursively stores dir and returns the checksums of its DirTree
// and DirMeta objects. Children are written before their parent.
func (im *importer) importDir(ctx context.Context, dir string) (object.Hash, object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return "", "", fmt.Errorf("import %s: %w", dir, err)
	}
	meta, err := im.dirMeta(dir, info)
	if err != nil {
		return "", "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("import %s: %w", dir, err)
	}

	tree := &object.DirTreeObj{}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := object.ValidateFilename(entry.Name()); err != nil {
			return "", "", fmt.Errorf("import %s: %w", path, err)
		}
		switch {
		case entry.IsDir():
			treeHash, metaHash, err := im.importDir(ctx, path)
			if err != nil {
				return "", "", err
			}
			tree.Dirs = append(tree.Dirs, object.DirTreeDir{
				Name:         entry.Name(),
				TreeChecksum: treeHash,
				MetaChecksum: metaHash,
			})
		case entry.Type().IsRegular() || entry.Type()&os.ModeSymlink != 0:
			h, err := im.importFile(path)
			if err != nil {
				return "", "", err
			}
			tree.Files = append(tree.Files, object.DirTreeFile{Name: entry.Name(), Checksum: h})
		default:
			return "", "", fmt.Errorf("import %s: unsupported file type %s", path, entry.Type())
		}
	}

	treeHash, err := im.store.WriteDirTree(tree)
	if err != nil {
		return "", "", fmt.Errorf("import %s: write dirtree: %w", dir, err)
	}
	metaHash, err := im.store.WriteDirMeta(meta)
	if err != nil {
		return "", "", fmt.Errorf("import %s: write dirmeta: %w", dir, err)
	}
	im.dirs++
	return treeHash, metaHash, nil
}

func (im *importer) dirMeta(path string, info os.FileInfo) (*object.DirMetaObj, error) {
	meta := &object.DirMetaObj{Mode: posixMode(info.Mode())}
	if im.canonical {
		return meta, nil
	}
	own, err := lstatOwnership(path)
	if err != nil {
		return nil, err
	}
	xattrs, err := readXattrs(path)
	if err != nil {
		return nil, err
	}
	meta.UID, meta.GID, meta.Xattrs = own.uid, own.gid, xattrs
	return meta, nil
}

func (im *importer) importFile(path string) (object.Hash, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("import %s: %w", path, err)
	}
	fi := &object.FileInfo{Mode: posixMode(info.Mode())}
	var xattrs []object.Xattr
	if !im.canonical {
		own, err := lstatOwnership(path)
		if err != nil {
			return "", err
		}
		fi.UID, fi.GID, fi.Rdev = own.uid, own.gid, own.rdev
		if xattrs, err = readXattrs(path); err != nil {
			return "", err
		}
	} else {
		// Canonical imports keep only the executable bits.
		fi.Mode = fi.Mode&object.ModeTypeMask | canonicalPerm(fi.Mode)
	}

	var h object.Hash
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("import %s: %w", path, err)
		}
		fi.SymlinkTarget = target
		h, err = im.store.WriteFile(fi, xattrs, nil)
		if err != nil {
			return "", fmt.Errorf("import %s: %w", path, err)
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("import %s: %w", path, err)
		}
		defer f.Close()
		h, err = im.store.WriteFile(fi, xattrs, f)
		if err != nil {
			return "", fmt.Errorf("import %s: %w", path, err)
		}
	}
	im.files++
	return h, nil
}

func canonicalPerm(mode uint32) uint32 {
	switch {
	case mode&object.ModeTypeMask == object.ModeSymlink:
		return 0o777
	case mode&0o111 != 0:
		return 0o755
	default:
		return 0o644
	}
}
