package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/bedrock/pkg/object"
	"github.com/odvcencio/bedrock/pkg/repo"
)

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestCommitCmdRecordsTreeAndMetadata(t *testing.T) {
	repoDir, srcDir := initTestRepo(t)

	out, err := runBedrock(t, "--repo", repoDir, "commit", srcDir,
		"--subject", "base image", "--body", "built nightly",
		"--meta", "version=42", "--meta", "arch=x86_64", "--canonical")
	require.NoError(t, err, out)
	commit := object.Hash(lastLine(out))
	require.NoError(t, object.ValidateChecksum(commit))

	r, err := repo.Open(repoDir)
	require.NoError(t, err)
	c, err := r.Store.ReadCommit(commit)
	require.NoError(t, err)
	assert.Equal(t, "base image", c.Subject)
	assert.Equal(t, "built nightly", c.Body)
	assert.Equal(t, map[string]any{"version": "42", "arch": "x86_64"}, c.Metadata)
	assert.Empty(t, c.Parent)
}

func TestCommitCmdBranchAndParent(t *testing.T) {
	repoDir, srcDir := initTestRepo(t)

	out, err := runBedrock(t, "--repo", repoDir, "commit", srcDir, "-s", "one", "--branch", "main")
	require.NoError(t, err, out)
	assert.Contains(t, out, "[main ")
	first := object.Hash(lastLine(out))

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("changed\n"), 0o644))
	out, err = runBedrock(t, "--repo", repoDir, "commit", srcDir, "-s", "two", "-b", "main")
	require.NoError(t, err, out)
	second := object.Hash(lastLine(out))

	r, err := repo.Open(repoDir)
	require.NoError(t, err)
	c, err := r.Store.ReadCommit(second)
	require.NoError(t, err)
	assert.Equal(t, first, c.Parent)

	out, err = runBedrock(t, "--repo", repoDir, "commit", srcDir, "-s", "detached", "--parent", "main")
	require.NoError(t, err, out)
	c, err = r.Store.ReadCommit(object.Hash(lastLine(out)))
	require.NoError(t, err)
	assert.Equal(t, second, c.Parent)

	out, err = runBedrock(t, "--repo", repoDir, "refs")
	require.NoError(t, err)
	assert.Equal(t, string(second)+" heads/main\n", out)

	_, err = runBedrock(t, "--repo", repoDir, "refs", "../..")
	require.Error(t, err)

	out, err = runBedrock(t, "--repo", repoDir, "reflog", "main")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], string(second[:8])+" "))
	assert.Contains(t, lines[0], "refs/heads/main commit: two")
}

func TestCommitCmdRejectsBadInput(t *testing.T) {
	repoDir, srcDir := initTestRepo(t)

	_, err := runBedrock(t, "--repo", repoDir, "commit", srcDir)
	require.Error(t, err)

	_, err = runBedrock(t, "--repo", repoDir, "commit", srcDir, "-s", "x", "--meta", "novalue")
	require.Error(t, err)

	_, err = runBedrock(t, "--repo", repoDir, "commit", srcDir, "-s", "x", "--parent", "missing")
	require.ErrorIs(t, err, repo.ErrRefNotFound)
}

func TestLsObjectsCmd(t *testing.T) {
	repoDir, srcDir := initTestRepo(t)
	out, err := runBedrock(t, "--repo", repoDir, "commit", srcDir, "-s", "one", "-b", "main")
	require.NoError(t, err, out)
	commit := lastLine(out)

	out, err = runBedrock(t, "--repo", repoDir, "ls-objects")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// commit, two dirtrees, two dirmetas, two files
	assert.Len(t, lines, 7)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, "\tloose"), line)
	}
	assert.Contains(t, out, commit+".commit\tloose\n")

	out, err = runBedrock(t, "--repo", repoDir, "ls-objects", "--reachable", "main")
	require.NoError(t, err)
	reach := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, reach, 7)
	assert.Contains(t, reach, commit+".commit")

	_, err = runBedrock(t, "--repo", repoDir, "ls-objects", "--reachable", "nope")
	require.ErrorIs(t, err, repo.ErrRefNotFound)
}
