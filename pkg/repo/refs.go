package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/bedrock/pkg/object"
)

var (
	ErrRefNotFound                     = errors.New("ref not found")
	ErrRefCASMismatch                  = errors.New("ref compare-and-swap mismatch")
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// RefUpdateReflogError is returned when a ref was moved but its reflog line
// could not be written. The ref keeps its new value.
type RefUpdateReflogError struct {
	Update RefUpdate
	Old    object.Hash
	Err    error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v",
		e.Update.Name, ErrRefUpdatedButReflogAppendFailed, e.Old, e.Update.New, e.Err)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

// RefUpdate moves one ref to a new commit.
type RefUpdate struct {
	Name string
	New  object.Hash
	// With CheckOld set, the update is refused unless the ref currently
	// holds Old. An empty Old requires the ref to be absent.
	Old      object.Hash
	CheckOld bool
	// Reason is recorded in the reflog. Defaults to "update".
	Reason string
}

const (
	refLockPoll    = 5 * time.Millisecond
	refLockTimeout = 2 * time.Second
)

// refName expands name to its full form. Bare names are branches under
// refs/heads.
func refName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty ref name")
	}
	if !strings.HasPrefix(name, "refs/") {
		name = "refs/heads/" + name
	}
	if !validRefPath(strings.TrimPrefix(name, "refs/")) {
		return "", fmt.Errorf("invalid ref name %q", name)
	}
	return name, nil
}

// validRefPath reports whether every slash-separated component of p can be
// used below refs/.
func validRefPath(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." || strings.HasSuffix(part, ".lock") {
			return false
		}
	}
	return true
}

func (r *Repo) refFile(full string) string {
	return filepath.Join(r.Path, filepath.FromSlash(full))
}

// ResolveRef returns the commit a ref points at.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	full, err := refName(name)
	if err != nil {
		return "", fmt.Errorf("resolve ref: %w", err)
	}
	h, err := readRefFile(r.refFile(full))
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	if h == "" {
		return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
	}
	return h, nil
}

// ResolveCommit accepts either a full checksum or a ref name.
func (r *Repo) ResolveCommit(rev string) (object.Hash, error) {
	if object.ValidateChecksum(object.Hash(rev)) == nil {
		return object.Hash(rev), nil
	}
	return r.ResolveRef(rev)
}

// ListRefs returns every ref below refs/<prefix>, keyed by its name relative
// to refs/ ("heads/main").
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" && (strings.Contains(prefix, `\`) || !validRefPath(prefix)) {
		return nil, fmt.Errorf("list refs: invalid prefix %q", prefix)
	}
	root := filepath.Join(r.Path, "refs")
	start := filepath.Join(root, filepath.FromSlash(prefix))

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(start, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		h, err := readRefFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = h
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// UpdateRef points name at h regardless of its current value.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.ApplyRefUpdate(RefUpdate{Name: name, New: h})
}

// UpdateRefCAS points name at h only if it currently holds old. An empty old
// means the ref must not exist yet.
func (r *Repo) UpdateRefCAS(name string, h, old object.Hash) error {
	return r.ApplyRefUpdate(RefUpdate{Name: name, New: h, Old: old, CheckOld: true})
}

// ApplyRefUpdate moves a ref under its lockfile: the new value is written to
// <ref>.lock, synced and renamed over the ref, then the reflog is appended.
func (r *Repo) ApplyRefUpdate(u RefUpdate) error {
	if err := object.ValidateChecksum(u.New); err != nil {
		return fmt.Errorf("update ref %q: %w", u.Name, err)
	}
	full, err := refName(u.Name)
	if err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	u.Name = full
	if strings.TrimSpace(u.Reason) == "" {
		u.Reason = "update"
	}

	lock, err := lockRef(r.refFile(full))
	if err != nil {
		return fmt.Errorf("update ref %q: %w", full, err)
	}
	defer lock.release()

	current, err := readRefFile(lock.target)
	if err != nil {
		return fmt.Errorf("update ref %q: read current value: %w", full, err)
	}
	if u.CheckOld && current != u.Old {
		return fmt.Errorf("update ref %q: %w (expected %s, found %s)", full, ErrRefCASMismatch, u.Old, current)
	}
	if err := lock.commit(u.New); err != nil {
		return fmt.Errorf("update ref %q: %w", full, err)
	}

	if err := r.appendReflog(u, current); err != nil {
		return &RefUpdateReflogError{Update: u, Old: current, Err: err}
	}
	return nil
}

// refLock is a held <ref>.lock file.
type refLock struct {
	target string
	f      *os.File
	done   bool
}

func lockRef(target string) (*refLock, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	path := target + ".lock"
	deadline := time.Now().Add(refLockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return &refLock{target: target, f: f}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock: timed out waiting for %s", path)
		}
		time.Sleep(refLockPoll)
	}
}

// commit writes h and renames the lockfile over the target.
func (l *refLock) commit(h object.Hash) error {
	if _, err := l.f.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(l.target+".lock", l.target); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	l.done = true
	return nil
}

// release drops the lock if commit did not consume it.
func (l *refLock) release() {
	if l.f != nil {
		_ = l.f.Close()
	}
	if !l.done {
		_ = os.Remove(l.target + ".lock")
	}
}

// readRefFile returns the checksum stored in a ref file, or "" when the file
// does not exist.
func readRefFile(path string) (object.Hash, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
