package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/odvcencio/bedrock/pkg/object"
)

// Pack consolidates all loose objects into a new pack.
func (r *Repo) Pack(ctx context.Context, opts object.PackOptions) (*object.PackSummary, error) {
	return r.Store.PackObjects(ctx, opts)
}

// Reachable traverses each rev (a checksum or a ref name) into one set.
// With no revs every ref is used as a root.
func (r *Repo) Reachable(ctx context.Context, revs []string, flags object.TraverseFlags) (object.Reachable, error) {
	roots, err := r.resolveRoots(revs)
	if err != nil {
		return nil, err
	}
	reachable := object.NewReachable()
	for _, h := range roots {
		if err := r.Store.TraverseCommit(ctx, h, flags, reachable); err != nil {
			return nil, err
		}
	}
	return reachable, nil
}

func (r *Repo) resolveRoots(revs []string) ([]object.Hash, error) {
	rootSet := make(map[object.Hash]struct{})
	if len(revs) == 0 {
		refs, err := r.ListRefs("")
		if err != nil {
			return nil, err
		}
		for _, h := range refs {
			if h != "" {
				rootSet[h] = struct{}{}
			}
		}
	}
	for _, rev := range revs {
		h, err := r.ResolveCommit(rev)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", rev, err)
		}
		rootSet[h] = struct{}{}
	}

	roots := make([]object.Hash, 0, len(rootSet))
	for h := range rootSet {
		roots = append(roots, h)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots, nil
}
