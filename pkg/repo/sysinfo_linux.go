//go:build linux

package repo

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/odvcencio/bedrock/pkg/object"
)

type ownership struct {
	uid, gid, rdev uint32
}

func lstatOwnership(path string) (ownership, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return ownership{}, fmt.Errorf("lstat %s: %w", path, err)
	}
	return ownership{uid: st.Uid, gid: st.Gid, rdev: uint32(st.Rdev)}, nil
}

// readXattrs returns the extended attributes of path without following
// symlinks, sorted by name. Filesystems without xattr support yield none.
func readXattrs(path string) ([]object.Xattr, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if xattrUnsupported(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listxattr %s: %w", path, err)
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	size, err = unix.Llistxattr(path, buf)
	if err != nil {
		return nil, fmt.Errorf("listxattr %s: %w", path, err)
	}

	var out []object.Xattr
	for _, name := range bytes.Split(buf[:size], []byte{0}) {
		if len(name) == 0 {
			continue
		}
		value, err := lgetxattr(path, string(name))
		if err != nil {
			return nil, err
		}
		out = append(out, object.Xattr{Name: string(name), Value: value})
	}
	return out, nil
}

func lgetxattr(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, fmt.Errorf("getxattr %s %s: %w", path, name, err)
	}
	value := make([]byte, size)
	if size == 0 {
		return value, nil
	}
	size, err = unix.Lgetxattr(path, name, value)
	if err != nil {
		return nil, fmt.Errorf("getxattr %s %s: %w", path, name, err)
	}
	return value[:size], nil
}

func xattrUnsupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}
