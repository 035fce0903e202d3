package repo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/bedrock/pkg/object"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// writeSourceTree lays out:
//
//	hello.txt  "hello\n"
//	link     -> hello.txt
//	run.sh     executable
//	sub/data.bin
func writeSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello\n"), 0o640))
	require.NoError(t, os.Symlink("hello.txt", filepath.Join(dir, "link")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\necho hi\n"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "data.bin"), []byte{0, 1, 2, 3}, 0o644))
	return dir
}

func initRepo(t *testing.T, opts InitOptions) *Repo {
	t.Helper()
	r, err := Init(filepath.Join(t.TempDir(), "repo"), opts)
	require.NoError(t, err)
	return r
}

func loadContent(t *testing.T, r *Repo, h object.Hash) ([]byte, *object.FileInfo) {
	t.Helper()
	rc, fi, _, err := r.Store.LoadFile(object.ObjectName{Checksum: h, Type: r.Store.Mode().FileObjectType()})
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data, fi
}

func fileEntry(t *testing.T, tree *object.DirTreeObj, name string) object.Hash {
	t.Helper()
	for _, f := range tree.Files {
		if f.Name == name {
			return f.Checksum
		}
	}
	t.Fatalf("file %q not in tree", name)
	return ""
}

func TestCommitDir_ImportsTree(t *testing.T) {
	r := initRepo(t, InitOptions{})
	src := writeSourceTree(t)

	res, err := r.CommitDir(context.Background(), src, CommitOptions{
		Subject:   "initial import",
		Body:      "first tree",
		Metadata:  map[string]any{"version": "1.0"},
		Timestamp: testTime,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Files)
	assert.Equal(t, 2, res.Dirs)
	assert.Empty(t, res.Parent)

	c, err := r.Store.ReadCommit(res.Commit)
	require.NoError(t, err)
	assert.Equal(t, "initial import", c.Subject)
	assert.Equal(t, "first tree", c.Body)
	assert.Equal(t, uint64(testTime.Unix()), c.Timestamp)
	assert.Equal(t, "1.0", c.Metadata["version"])
	assert.Equal(t, res.RootTree, c.RootTree)
	assert.Equal(t, res.RootMeta, c.RootMeta)

	root, err := r.Store.ReadDirTree(res.RootTree)
	require.NoError(t, err)
	require.Len(t, root.Files, 3)
	assert.Equal(t, "hello.txt", root.Files[0].Name)
	assert.Equal(t, "link", root.Files[1].Name)
	assert.Equal(t, "run.sh", root.Files[2].Name)
	require.Len(t, root.Dirs, 1)
	assert.Equal(t, "sub", root.Dirs[0].Name)

	data, fi := loadContent(t, r, fileEntry(t, root, "hello.txt"))
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, object.ModeRegular|0o640, fi.Mode)

	data, fi = loadContent(t, r, fileEntry(t, root, "link"))
	assert.Empty(t, data)
	assert.True(t, fi.IsSymlink())
	assert.Equal(t, "hello.txt", fi.SymlinkTarget)

	sub, err := r.Store.ReadDirTree(root.Dirs[0].TreeChecksum)
	require.NoError(t, err)
	data, _ = loadContent(t, r, fileEntry(t, sub, "data.bin"))
	assert.Equal(t, []byte{0, 1, 2, 3}, data)

	meta, err := r.Store.ReadDirMeta(root.Dirs[0].MetaChecksum)
	require.NoError(t, err)
	assert.Equal(t, object.ModeDir|0o755, meta.Mode)
}

func TestCommitDir_CanonicalPermissions(t *testing.T) {
	r := initRepo(t, InitOptions{})
	src := writeSourceTree(t)

	res, err := r.CommitDir(context.Background(), src, CommitOptions{
		Subject:   "canonical",
		Timestamp: testTime,
		Canonical: true,
	})
	require.NoError(t, err)

	root, err := r.Store.ReadDirTree(res.RootTree)
	require.NoError(t, err)

	_, fi := loadContent(t, r, fileEntry(t, root, "hello.txt"))
	assert.Equal(t, object.ModeRegular|0o644, fi.Mode)
	assert.Zero(t, fi.UID)
	assert.Zero(t, fi.GID)

	_, fi = loadContent(t, r, fileEntry(t, root, "run.sh"))
	assert.Equal(t, object.ModeRegular|0o755, fi.Mode)

	_, fi = loadContent(t, r, fileEntry(t, root, "link"))
	assert.Equal(t, object.ModeSymlink|0o777, fi.Mode)
}

func TestCommitDir_Deterministic(t *testing.T) {
	src := writeSourceTree(t)
	opts := CommitOptions{Subject: "same", Timestamp: testTime, Canonical: true}

	a, err := initRepo(t, InitOptions{}).CommitDir(context.Background(), src, opts)
	require.NoError(t, err)
	b, err := initRepo(t, InitOptions{Mode: "archive"}).CommitDir(context.Background(), src, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Commit, b.Commit)
	assert.Equal(t, a.RootTree, b.RootTree)
}

func TestCommitDir_ArchiveMode(t *testing.T) {
	r := initRepo(t, InitOptions{Mode: "archive", Compression: "lz4"})
	src := writeSourceTree(t)

	res, err := r.CommitDir(context.Background(), src, CommitOptions{Subject: "archive", Timestamp: testTime})
	require.NoError(t, err)

	root, err := r.Store.ReadDirTree(res.RootTree)
	require.NoError(t, err)
	h := fileEntry(t, root, "hello.txt")
	assert.True(t, r.Store.HasLoose(object.ObjectName{Checksum: h, Type: object.TypeArchivedFileContent}))
	assert.False(t, r.Store.HasLoose(object.ObjectName{Checksum: h, Type: object.TypeRawFile}))

	data, _ := loadContent(t, r, h)
	assert.Equal(t, "hello\n", string(data))
}

func TestCommitDir_BranchAdvances(t *testing.T) {
	r := initRepo(t, InitOptions{})
	src := writeSourceTree(t)
	ctx := context.Background()

	first, err := r.CommitDir(ctx, src, CommitOptions{Subject: "one", Branch: "main", Timestamp: testTime})
	require.NoError(t, err)
	assert.Empty(t, first.Parent)

	require.NoError(t, os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hello again\n"), 0o640))
	second, err := r.CommitDir(ctx, src, CommitOptions{Subject: "two", Branch: "main", Timestamp: testTime.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, first.Commit, second.Parent)

	head, err := r.ResolveRef("main")
	require.NoError(t, err)
	assert.Equal(t, second.Commit, head)

	entries, err := r.ReadReflog("main", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.Commit, entries[0].OldHash)
	assert.Equal(t, "commit: two", entries[0].Reason)
	assert.Equal(t, "commit: one", entries[1].Reason)
}

func TestCommitDir_RejectsBadInput(t *testing.T) {
	r := initRepo(t, InitOptions{})
	src := writeSourceTree(t)
	ctx := context.Background()

	_, err := r.CommitDir(ctx, src, CommitOptions{})
	require.Error(t, err)

	_, err = r.CommitDir(ctx, filepath.Join(src, "hello.txt"), CommitOptions{Subject: "file"})
	require.Error(t, err)

	_, err = r.CommitDir(ctx, src, CommitOptions{Subject: "orphan", Parent: hashA})
	require.ErrorIs(t, err, object.ErrObjectNotFound)
}

func TestCommitDir_Canceled(t *testing.T) {
	r := initRepo(t, InitOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.CommitDir(ctx, writeSourceTree(t), CommitOptions{Subject: "x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReachable_FromRefs(t *testing.T) {
	r := initRepo(t, InitOptions{})
	src := writeSourceTree(t)
	ctx := context.Background()

	first, err := r.CommitDir(ctx, src, CommitOptions{Subject: "one", Branch: "main", Timestamp: testTime})
	require.NoError(t, err)
	second, err := r.CommitDir(ctx, src, CommitOptions{Subject: "two", Branch: "main", Timestamp: testTime.Add(time.Minute)})
	require.NoError(t, err)

	reach, err := r.Reachable(ctx, nil, object.TraverseNone)
	require.NoError(t, err)
	assert.True(t, reach.Has(object.ObjectName{Checksum: second.Commit, Type: object.TypeCommit}))
	assert.False(t, reach.Has(object.ObjectName{Checksum: first.Commit, Type: object.TypeCommit}))
	assert.True(t, reach.Has(object.ObjectName{Checksum: second.RootTree, Type: object.TypeDirTree}))
	assert.True(t, reach.Has(object.ObjectName{Checksum: second.RootMeta, Type: object.TypeDirMeta}))

	withParents, err := r.Reachable(ctx, []string{"main"}, object.TraverseParents)
	require.NoError(t, err)
	assert.True(t, withParents.Has(object.ObjectName{Checksum: first.Commit, Type: object.TypeCommit}))

	byChecksum, err := r.Reachable(ctx, []string{string(first.Commit)}, object.TraverseNone)
	require.NoError(t, err)
	assert.True(t, byChecksum.Has(object.ObjectName{Checksum: first.Commit, Type: object.TypeCommit}))
	assert.False(t, byChecksum.Has(object.ObjectName{Checksum: second.Commit, Type: object.TypeCommit}))

	_, err = r.Reachable(ctx, []string{"nope"}, object.TraverseNone)
	require.ErrorIs(t, err, ErrRefNotFound)
}

func TestPack_PrunesAndKeepsReadable(t *testing.T) {
	r := initRepo(t, InitOptions{})
	ctx := context.Background()
	res, err := r.CommitDir(ctx, writeSourceTree(t), CommitOptions{Subject: "packed", Branch: "main", Timestamp: testTime})
	require.NoError(t, err)

	before, err := r.Store.ListObjects(ctx, object.ListLoose)
	require.NoError(t, err)

	summary, err := r.Pack(ctx, object.PackOptions{Compress: true, Prune: true})
	require.NoError(t, err)
	assert.Equal(t, len(before), summary.PackedObjects)
	assert.Equal(t, len(before), summary.PrunedObjects)

	loose, err := r.Store.ListObjects(ctx, object.ListLoose)
	require.NoError(t, err)
	assert.Empty(t, loose)

	reach, err := r.Reachable(ctx, nil, object.TraverseParents)
	require.NoError(t, err)
	assert.Len(t, reach, len(before))

	c, err := r.Store.ReadCommit(res.Commit)
	require.NoError(t, err)
	assert.Equal(t, "packed", c.Subject)
	require.NoError(t, r.Store.VerifyPack(ctx, summary.Pack))
}
