// Package fsck verifies the consistency of an object store: every object
// reachable from a commit must hash to the checksum it is stored under, and
// every pack must match its index.
package fsck

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/bedrock/pkg/object"
)

// Store is the subset of *object.Store the checker reads from.
type Store interface {
	Algorithm() object.Algorithm
	ListObjects(ctx context.Context, filter object.ListFilter) (map[object.ObjectName]*object.ObjectLocation, error)
	TraverseCommit(ctx context.Context, commit object.Hash, flags object.TraverseFlags, reachable object.Reachable) error
	LoadMetadata(name object.ObjectName) ([]byte, error)
	LoadFile(name object.ObjectName) (io.ReadCloser, *object.FileInfo, []object.Xattr, error)
	Locate(name object.ObjectName) (string, error)
	DeleteLoose(name object.ObjectName) error
	ListPackChecksums() ([]object.Hash, error)
	VerifyPack(ctx context.Context, h object.Hash) error
}

// Options controls a Checker run.
type Options struct {
	// Quiet suppresses the progress lines.
	Quiet bool
	// Delete removes the loose copy of each corrupted object.
	Delete bool
	// KeepGoing continues past corrupted objects and reports the first one
	// once every reachable object has been checked.
	KeepGoing bool
	// Out receives progress lines. Nil discards them.
	Out io.Writer
	// Logger receives per-object diagnostics. Nil discards them.
	Logger logrus.FieldLogger
}

// Report summarizes a run. It is returned even when the run fails, filled
// in up to the failing phase.
type Report struct {
	Objects   int // distinct object names enumerated
	Loose     int
	Packed    int
	Commits   int
	Reachable int
	Checked   int
	Packs     int
	Corrupted []object.ObjectName
	Deleted   []object.ObjectName
}

// Checker runs the consistency check against one store.
type Checker struct {
	store Store
	opts  Options
	out   io.Writer
	log   logrus.FieldLogger
}

// New returns a Checker for store.
func New(store Store, opts Options) *Checker {
	c := &Checker{store: store, opts: opts, out: opts.Out, log: opts.Logger}
	if c.out == nil || opts.Quiet {
		c.out = io.Discard
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	return c
}

// Run executes the check. Phases run in order and each one must succeed
// before the next starts:
//
//  1. Enumerate every loose and packed object
//  2. Collect the commits
//  3. Traverse the commits and verify the content of each reachable object
//  4. Verify every pack against its index
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	fmt.Fprintln(c.out, "Enumerating objects...")
	objects, err := c.store.ListObjects(ctx, object.ListAll)
	if err != nil {
		return report, fmt.Errorf("fsck: enumerate: %w", err)
	}
	var commits []object.ObjectName
	for name, loc := range objects {
		report.Objects++
		if loc.Loose {
			report.Loose++
		}
		if len(loc.Packs) > 0 {
			report.Packed++
		}
		if name.Type == object.TypeCommit {
			commits = append(commits, name)
		}
	}
	object.SortObjectNames(commits)
	report.Commits = len(commits)
	c.log.WithFields(logrus.Fields{
		"objects": report.Objects,
		"loose":   report.Loose,
		"packed":  report.Packed,
	}).Debug("enumerated objects")

	fmt.Fprintf(c.out, "Verifying content integrity of %d commit objects...\n", len(commits))
	if err := c.checkReachable(ctx, commits, report); err != nil {
		return report, err
	}

	fmt.Fprintln(c.out, "Verifying structure of pack files...")
	if err := c.checkPacks(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

func (c *Checker) checkReachable(ctx context.Context, commits []object.ObjectName, report *Report) error {
	reachable := object.NewReachable()
	for _, commit := range commits {
		if err := c.store.TraverseCommit(ctx, commit.Checksum, object.TraverseNone, reachable); err != nil {
			return fmt.Errorf("fsck: %w", err)
		}
	}
	report.Reachable = len(reachable)

	var firstCorruption error
	for _, name := range reachable.Sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name.Type == object.TypeArchivedFileContent {
			// Verified through its ArchivedFileMeta.
			continue
		}
		actual, err := c.checksumObject(name)
		var contentErr *object.CorruptContentError
		if err != nil && !errors.As(err, &contentErr) {
			return fmt.Errorf("fsck: %w", err)
		}
		report.Checked++
		c.log.WithFields(logrus.Fields{"checksum": name.Checksum, "type": name.Type}).Debug("verified object")
		if err == nil && actual == name.Checksum {
			continue
		}

		corruption := c.corruption(name, actual, contentErr)
		report.Corrupted = append(report.Corrupted, name)

		if c.opts.Delete {
			if err := c.store.DeleteLoose(name); err != nil {
				return errors.Join(corruption, err)
			}
			report.Deleted = append(report.Deleted, name)
			c.log.WithFields(logrus.Fields{
				"checksum": name.Checksum,
				"type":     name.Type,
				"actual":   actual,
			}).Warn("deleted corrupted object")
		}
		if !c.opts.KeepGoing {
			return corruption
		}
		if firstCorruption == nil {
			firstCorruption = corruption
		}
	}
	return firstCorruption
}

// corruption builds the error reported for a corrupted object, naming the
// file that holds the bad bytes.
func (c *Checker) corruption(name object.ObjectName, actual object.Hash, contentErr *object.CorruptContentError) error {
	if contentErr != nil {
		at := name
		if name.Type == object.TypeArchivedFileMeta {
			at.Type = object.TypeArchivedFileContent
		}
		if path, err := c.store.Locate(at); err == nil {
			contentErr.Path = path
		}
		return contentErr
	}
	mismatch := &object.ChecksumMismatchError{Name: name, Actual: actual}
	if path, err := c.store.Locate(name); err == nil {
		mismatch.Path = path
	}
	return mismatch
}

// checksumObject reloads an object and recomputes its checksum.
func (c *Checker) checksumObject(name object.ObjectName) (object.Hash, error) {
	switch name.Type {
	case object.TypeCommit, object.TypeDirTree, object.TypeDirMeta:
		data, err := c.store.LoadMetadata(name)
		if err != nil {
			return "", err
		}
		return object.ChecksumMetadata(c.store.Algorithm(), name.Type, data), nil
	case object.TypeRawFile, object.TypeArchivedFileMeta:
		rc, info, xattrs, err := c.store.LoadFile(name)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		h, err := object.ChecksumFile(c.store.Algorithm(), info, xattrs, rc)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return h, nil
	default:
		return "", fmt.Errorf("%s: unexpected object type", name)
	}
}

func (c *Checker) checkPacks(ctx context.Context, report *Report) error {
	packs, err := c.store.ListPackChecksums()
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}
	for _, h := range packs {
		if err := c.store.VerifyPack(ctx, h); err != nil {
			return fmt.Errorf("fsck: %w", err)
		}
		report.Packs++
		c.log.WithField("pack", h).Debug("verified pack")
	}
	return nil
}
