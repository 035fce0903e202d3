package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/bedrock/pkg/object"
)

// nullHash stands in for "no previous value" in the reflog.
var nullHash = object.Hash(strings.Repeat("0", 2*object.DigestSize))

// ReflogEntry is one recorded ref transition.
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash // empty when the ref was created
	NewHash   object.Hash
	Timestamp int64
	Reason    string
}

func (r *Repo) reflogPath(full string) string {
	return filepath.Join(r.Path, "logs", filepath.FromSlash(full))
}

// appendReflog records u as one line:
//
//	<old> <new> <unix-seconds>\t<reason>
func (r *Repo) appendReflog(u RefUpdate, old object.Hash) error {
	if old == "" {
		old = nullHash
	}
	reason := strings.ReplaceAll(u.Reason, "\n", " ")
	line := fmt.Sprintf("%s %s %d\t%s\n", old, u.New, time.Now().Unix(), reason)

	path := r.reflogPath(u.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("reflog: %w", err)
	}
	return f.Close()
}

// ReadReflog returns up to limit entries for a ref, newest first. A limit
// of zero or less returns them all; malformed lines are skipped.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	full, err := refName(ref)
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	data, err := os.ReadFile(r.reflogPath(full))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	var entries []ReflogEntry
	for i := len(lines) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) == limit {
			break
		}
		e, ok := parseReflogLine(lines[i])
		if !ok {
			continue
		}
		e.Ref = full
		entries = append(entries, e)
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, bool) {
	head, reason, _ := strings.Cut(line, "\t")
	fields := strings.Fields(head)
	if len(fields) != 3 {
		return ReflogEntry{}, false
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	e := ReflogEntry{
		OldHash:   object.Hash(fields[0]),
		NewHash:   object.Hash(fields[1]),
		Timestamp: ts,
		Reason:    reason,
	}
	if e.OldHash == nullHash {
		e.OldHash = ""
	}
	return e, true
}
