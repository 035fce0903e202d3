package repo

import (
	"io/fs"

	"github.com/odvcencio/bedrock/pkg/object"
)

// posixMode converts a Go file mode into the S_IFMT|07777 form stored in
// objects. Types other than regular files, directories and symlinks return 0.
func posixMode(m fs.FileMode) uint32 {
	var mode uint32
	switch {
	case m.IsRegular():
		mode = object.ModeRegular
	case m.IsDir():
		mode = object.ModeDir
	case m&fs.ModeSymlink != 0:
		mode = object.ModeSymlink
	default:
		return 0
	}
	mode |= uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}
