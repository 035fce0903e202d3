// Package diff compares the trees of two commits.
package diff

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/odvcencio/bedrock/pkg/object"
)

// ChangeType classifies what happened to a path between two trees.
type ChangeType int

const (
	Added    ChangeType = iota // Path exists only in the after tree.
	Removed                    // Path exists only in the before tree.
	Modified                   // Path exists in both trees with different content or metadata.
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "A"
	case Removed:
		return "D"
	case Modified:
		return "M"
	default:
		return "?"
	}
}

// Change records one changed path. For directories Before and After hold the
// DirMeta checksums; an added or removed directory is reported once, without
// its contents.
type Change struct {
	Type   ChangeType
	Path   string
	Dir    bool
	Before object.Hash // empty for Added
	After  object.Hash // empty for Removed
}

// Store is the subset of *object.Store a diff reads from.
type Store interface {
	Mode() object.Mode
	ReadCommit(h object.Hash) (*object.CommitObj, error)
	ReadDirTree(h object.Hash) (*object.DirTreeObj, error)
	LoadFile(name object.ObjectName) (io.ReadCloser, *object.FileInfo, []object.Xattr, error)
}

// Commits compares the root trees of two commits. An empty from compares
// against an empty tree, so every path in to is reported as added.
func Commits(ctx context.Context, s Store, from, to object.Hash) ([]Change, error) {
	before := &object.DirTreeObj{}
	var beforeMeta object.Hash
	if from != "" {
		c, err := s.ReadCommit(from)
		if err != nil {
			return nil, fmt.Errorf("diff: %w", err)
		}
		if before, err = s.ReadDirTree(c.RootTree); err != nil {
			return nil, fmt.Errorf("diff: %w", err)
		}
		beforeMeta = c.RootMeta
	}
	c, err := s.ReadCommit(to)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	after, err := s.ReadDirTree(c.RootTree)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	var changes []Change
	if beforeMeta != "" && beforeMeta != c.RootMeta {
		changes = append(changes, Change{Type: Modified, Path: "/", Dir: true, Before: beforeMeta, After: c.RootMeta})
	}
	rest, err := Trees(ctx, s, before, after)
	if err != nil {
		return nil, err
	}
	return append(changes, rest...), nil
}

// Trees compares two DirTrees recursively. Changes are sorted by path.
func Trees(ctx context.Context, s Store, before, after *object.DirTreeObj) ([]Change, error) {
	w := &walker{ctx: ctx, store: s}
	if err := w.dir("/", before, after); err != nil {
		return nil, err
	}
	sort.SliceStable(w.changes, func(i, j int) bool { return w.changes[i].Path < w.changes[j].Path })
	return w.changes, nil
}

type walker struct {
	ctx     context.Context
	store   Store
	changes []Change
}

func (w *walker) add(c Change) {
	w.changes = append(w.changes, c)
}

func (w *walker) dir(prefix string, before, after *object.DirTreeObj) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	beforeFiles := make(map[string]object.Hash, len(before.Files))
	for _, f := range before.Files {
		beforeFiles[f.Name] = f.Checksum
	}
	afterFiles := make(map[string]object.Hash, len(after.Files))
	for _, f := range after.Files {
		afterFiles[f.Name] = f.Checksum
		old, ok := beforeFiles[f.Name]
		switch {
		case !ok:
			w.add(Change{Type: Added, Path: path.Join(prefix, f.Name), After: f.Checksum})
		case old != f.Checksum:
			w.add(Change{Type: Modified, Path: path.Join(prefix, f.Name), Before: old, After: f.Checksum})
		}
	}
	for _, f := range before.Files {
		if _, ok := afterFiles[f.Name]; !ok {
			w.add(Change{Type: Removed, Path: path.Join(prefix, f.Name), Before: f.Checksum})
		}
	}

	beforeDirs := make(map[string]object.DirTreeDir, len(before.Dirs))
	for _, d := range before.Dirs {
		beforeDirs[d.Name] = d
	}
	afterDirs := make(map[string]struct{}, len(after.Dirs))
	for _, d := range after.Dirs {
		afterDirs[d.Name] = struct{}{}
		p := path.Join(prefix, d.Name)
		old, ok := beforeDirs[d.Name]
		if !ok {
			w.add(Change{Type: Added, Path: p, Dir: true, After: d.MetaChecksum})
			continue
		}
		if old.MetaChecksum != d.MetaChecksum {
			w.add(Change{Type: Modified, Path: p, Dir: true, Before: old.MetaChecksum, After: d.MetaChecksum})
		}
		if old.TreeChecksum == d.TreeChecksum {
			continue
		}
		oldTree, err := w.store.ReadDirTree(old.TreeChecksum)
		if err != nil {
			return fmt.Errorf("diff %s: %w", p, err)
		}
		newTree, err := w.store.ReadDirTree(d.TreeChecksum)
		if err != nil {
			return fmt.Errorf("diff %s: %w", p, err)
		}
		if err := w.dir(p, oldTree, newTree); err != nil {
			return err
		}
	}
	for _, d := range before.Dirs {
		if _, ok := afterDirs[d.Name]; !ok {
			w.add(Change{Type: Removed, Path: path.Join(prefix, d.Name), Dir: true, Before: d.MetaChecksum})
		}
	}
	return nil
}
