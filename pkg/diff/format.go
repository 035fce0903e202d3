package diff

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/bedrock/pkg/object"
)

// maxPatchLines bounds the files WritePatch diffs line by line.
const maxPatchLines = 20000

// FormatSummary lists one change per line:
//
//	M    /etc/os-release
//	A    /usr/bin/tool
//	D    /var/cache/
func FormatSummary(changes []Change) string {
	var b strings.Builder
	for _, c := range changes {
		p := c.Path
		if c.Dir && p != "/" {
			p += "/"
		}
		fmt.Fprintf(&b, "%s    %s\n", c.Type, p)
	}
	return b.String()
}

// WritePatch writes a line-level diff of every modified regular file.
// Directories, symlinks and added or removed paths are skipped; files with a
// NUL byte are reported as binary.
//
//	--- a/etc/os-release
//	+++ b/etc/os-release
//	-NAME=old
//	+NAME=new
func WritePatch(w io.Writer, s Store, changes []Change) error {
	fileType := s.Mode().FileObjectType()
	for _, c := range changes {
		if c.Type != Modified || c.Dir {
			continue
		}
		before, beforeInfo, err := loadContent(s, object.ObjectName{Checksum: c.Before, Type: fileType})
		if err != nil {
			return err
		}
		after, afterInfo, err := loadContent(s, object.ObjectName{Checksum: c.After, Type: fileType})
		if err != nil {
			return err
		}
		if beforeInfo.IsSymlink() || afterInfo.IsSymlink() || bytes.Equal(before, after) {
			continue
		}

		if isBinary(before) || isBinary(after) {
			if _, err := fmt.Fprintf(w, "Binary files a%s and b%s differ\n", c.Path, c.Path); err != nil {
				return err
			}
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "--- a%s\n", c.Path)
		fmt.Fprintf(&b, "+++ b%s\n", c.Path)
		a, bl := splitLines(before), splitLines(after)
		if len(a) > maxPatchLines || len(bl) > maxPatchLines {
			fmt.Fprintf(&b, "(%d -> %d lines, too large to diff)\n", len(a), len(bl))
		} else {
			for _, op := range Lines(a, bl) {
				switch op.Type {
				case Delete:
					fmt.Fprintf(&b, "-%s\n", op.Line)
				case Insert:
					fmt.Fprintf(&b, "+%s\n", op.Line)
				case Equal:
					fmt.Fprintf(&b, " %s\n", op.Line)
				}
			}
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func loadContent(s Store, name object.ObjectName) ([]byte, *object.FileInfo, error) {
	rc, info, _, err := s.LoadFile(name)
	if err != nil {
		return nil, nil, fmt.Errorf("diff: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("diff: read %s: %w", name, err)
	}
	return data, info, nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func splitLines(data []byte) []string {
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
