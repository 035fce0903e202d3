//go:build !linux

package repo

import (
	"fmt"
	"os"

	"github.com/odvcencio/bedrock/pkg/object"
)

type ownership struct {
	uid, gid, rdev uint32
}

// Ownership and xattrs are only recorded on Linux. Elsewhere files are
// imported as owned by root with no xattrs.
func lstatOwnership(path string) (ownership, error) {
	if _, err := os.Lstat(path); err != nil {
		return ownership{}, fmt.Errorf("lstat %s: %w", path, err)
	}
	return ownership{}, nil
}

func readXattrs(string) ([]object.Xattr, error) {
	return nil, nil
}
