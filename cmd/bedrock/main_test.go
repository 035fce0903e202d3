package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/bedrock/pkg/repo"
)

// runBedrock executes the root command with args and returns everything it
// wrote to stdout and stderr.
func runBedrock(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func chdirForTest(t *testing.T, dir string) func() {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() {
		require.NoError(t, os.Chdir(wd))
	}
}

// initTestRepo creates a repository plus a small source tree to commit.
func initTestRepo(t *testing.T, extra ...string) (repoDir, srcDir string) {
	t.Helper()
	repoDir = filepath.Join(t.TempDir(), "repo")
	out, err := runBedrock(t, append([]string{"init", repoDir}, extra...)...)
	require.NoError(t, err, out)

	srcDir = t.TempDir()
	// The root and etc/ must differ in mode so they get distinct dirmetas.
	require.NoError(t, os.Chmod(srcDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hello\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "etc", "os-release"), []byte("NAME=bedrock\n"), 0o644))
	return repoDir, srcDir
}

func TestVersionCmd(t *testing.T) {
	out, err := runBedrock(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "bedrock "+version+"\n", out)
}

func TestInitCmd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "repo")

	out, err := runBedrock(t, "init", dir, "--mode", "archive", "--checksum", "blake3")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized empty archive repository in "+dir)
	assert.Contains(t, out, "(checksum blake3)")

	r, err := repo.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "archive", r.Config.Core.Mode)

	_, err = runBedrock(t, "init", dir)
	require.ErrorIs(t, err, repo.ErrRepositoryExists)

	_, err = runBedrock(t, "init", filepath.Join(t.TempDir(), "bad"), "--compression", "gzip")
	require.Error(t, err)
}

func TestInitCmdUsesRepoFlag(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	_, err := runBedrock(t, "--repo", dir, "init")
	require.NoError(t, err)
	_, err = repo.Open(dir)
	require.NoError(t, err)
}

func TestRepoFromEnvironment(t *testing.T) {
	repoDir, _ := initTestRepo(t)
	t.Setenv("BEDROCK_REPO", repoDir)

	out, err := runBedrock(t, "fsck")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ok: checked 0 object(s)")
}

func TestOpenOutsideRepository(t *testing.T) {
	_, err := runBedrock(t, "--repo", t.TempDir(), "ls-objects")
	require.ErrorIs(t, err, repo.ErrNotRepository)
}

func TestLogFlags(t *testing.T) {
	repoDir, _ := initTestRepo(t)

	out, err := runBedrock(t, "--repo", repoDir, "--log-level", "debug", "--log-format", "json", "refs")
	require.NoError(t, err)
	line := strings.SplitN(strings.TrimSpace(out), "\n", 2)[0]
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry), out)
	assert.Equal(t, "opened repository", entry["msg"])
	assert.Equal(t, "debug", entry["level"])

	_, err = runBedrock(t, "--repo", repoDir, "--log-level", "loud", "refs")
	require.Error(t, err)
	_, err = runBedrock(t, "--repo", repoDir, "--log-format", "xml", "refs")
	require.Error(t, err)
}
