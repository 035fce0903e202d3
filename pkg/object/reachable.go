package object

import (
	"context"
	"fmt"
)

// Reachable accumulates object names found by traversal. It is owned by the
// caller and may be shared across several TraverseCommit calls.
type Reachable map[ObjectName]struct{}

// NewReachable returns an empty set.
func NewReachable() Reachable {
	return make(Reachable)
}

// Has reports whether name was reached.
func (r Reachable) Has(name ObjectName) bool {
	_, ok := r[name]
	return ok
}

// Sorted returns the names in (checksum, type) order.
func (r Reachable) Sorted() []ObjectName {
	out := make([]ObjectName, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	SortObjectNames(out)
	return out
}

// TraverseFlags changes how TraverseCommit follows links.
type TraverseFlags uint8

const (
	TraverseNone TraverseFlags = 0
	// TraverseParents also walks the parent chain. A parent that is not
	// present in the store ends the chain.
	TraverseParents TraverseFlags = 1 << 0
)

// TraverseCommit adds the commit and every object its tree references to
// reachable. Trees are loaded and validated; files and dirmeta objects are
// only named. Objects already in reachable are not visited again.
func (s *Store) TraverseCommit(ctx context.Context, commit Hash, flags TraverseFlags, reachable Reachable) error {
	for commit != "" {
		name := ObjectName{Checksum: commit, Type: TypeCommit}
		if reachable.Has(name) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		c, err := s.ReadCommit(commit)
		if err != nil {
			return fmt.Errorf("traverse commit %s: %w", commit, err)
		}
		reachable[name] = struct{}{}
		reachable[ObjectName{Checksum: c.RootMeta, Type: TypeDirMeta}] = struct{}{}
		if err := s.traverseDirTree(ctx, c.RootTree, reachable); err != nil {
			return err
		}

		if flags&TraverseParents == 0 || c.Parent == "" {
			return nil
		}
		ok, err := s.Has(ObjectName{Checksum: c.Parent, Type: TypeCommit})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		commit = c.Parent
	}
	return nil
}

func (s *Store) traverseDirTree(ctx context.Context, h Hash, reachable Reachable) error {
	name := ObjectName{Checksum: h, Type: TypeDirTree}
	if reachable.Has(name) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tree, err := s.ReadDirTree(h)
	if err != nil {
		return fmt.Errorf("traverse dirtree %s: %w", h, err)
	}
	reachable[name] = struct{}{}

	fileTypes := s.opts.Mode.FileObjectTypes()
	for _, f := range tree.Files {
		for _, t := range fileTypes {
			reachable[ObjectName{Checksum: f.Checksum, Type: t}] = struct{}{}
		}
	}
	for _, d := range tree.Dirs {
		reachable[ObjectName{Checksum: d.MetaChecksum, Type: TypeDirMeta}] = struct{}{}
		if err := s.traverseDirTree(ctx, d.TreeChecksum, reachable); err != nil {
			return err
		}
	}
	return nil
}
