package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/odvcencio/bedrock/pkg/object"
)

// CommitOptions describes a commit created from a directory.
type CommitOptions struct {
	Subject  string
	Body     string
	Metadata map[string]any
	// Parent is the parent commit. When empty and Branch is set, the
	// branch's current commit (if any) becomes the parent.
	Parent object.Hash
	// Branch, when set, is moved to the new commit with a compare-and-swap
	// against the value it had when the commit started.
	Branch string
	// Timestamp defaults to the current time.
	Timestamp time.Time
	// Canonical drops ownership and xattrs and normalizes permissions to
	// 0644/0755.
	Canonical bool
}

// CommitResult reports what CommitDir wrote.
type CommitResult struct {
	Commit   object.Hash
	RootTree object.Hash
	RootMeta object.Hash
	Parent   object.Hash
	Files    int
	Dirs     int
}

// CommitDir imports the directory tree at dir and records it as a commit.
//
//  1. Resolve the parent (explicit or from Branch)
//  2. Import files and directories bottom-up
//  3. Write the commit
//  4. Move Branch, if set
func (r *Repo) CommitDir(ctx context.Context, dir string, opts CommitOptions) (*CommitResult, error) {
	if opts.Subject == "" {
		return nil, fmt.Errorf("commit: subject is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("commit: %s is not a directory", dir)
	}

	parent := opts.Parent
	var branchOld object.Hash
	if opts.Branch != "" {
		branchOld, err = r.ResolveRef(opts.Branch)
		if err != nil && !errors.Is(err, ErrRefNotFound) {
			return nil, fmt.Errorf("commit: %w", err)
		}
		if parent == "" {
			parent = branchOld
		}
	}
	if parent != "" {
		if _, err := r.Store.ReadCommit(parent); err != nil {
			return nil, fmt.Errorf("commit: parent: %w", err)
		}
	}

	im := &importer{store: r.Store, canonical: opts.Canonical}
	rootTree, rootMeta, err := im.importDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	commitHash, err := r.Store.WriteCommit(&object.CommitObj{
		Metadata:  opts.Metadata,
		Parent:    parent,
		Subject:   opts.Subject,
		Body:      opts.Body,
		Timestamp: uint64(ts.Unix()),
		RootTree:  rootTree,
		RootMeta:  rootMeta,
	})
	if err != nil {
		return nil, fmt.Errorf("commit: write commit: %w", err)
	}

	if opts.Branch != "" {
		err := r.ApplyRefUpdate(RefUpdate{
			Name:     opts.Branch,
			New:      commitHash,
			Old:      branchOld,
			CheckOld: true,
			Reason:   "commit: " + opts.Subject,
		})
		if err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
	}

	return &CommitResult{
		Commit:   commitHash,
		RootTree: rootTree,
		RootMeta: rootMeta,
		Parent:   parent,
		Files:    im.files,
		Dirs:     im.dirs,
	}, nil
}
