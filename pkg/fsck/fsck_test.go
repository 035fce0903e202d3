package fsck

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/bedrock/pkg/object"
)

// packIndexOffsetPos is the position of the first entry's offset in an
// index: 44 header bytes, then type and checksum.
const packIndexOffsetPos = 44 + 1 + object.DigestSize

type fixture struct {
	commit object.Hash
	tree   object.Hash
	meta   object.Hash
	file   object.Hash
}

func (f fixture) fileName(s *object.Store) object.ObjectName {
	return object.ObjectName{Checksum: f.file, Type: s.Mode().FileObjectType()}
}

// writeCommit stores a commit whose tree holds one file, hello.txt.
func writeCommit(t *testing.T, s *object.Store, content, subject string) fixture {
	t.Helper()
	var f fixture
	var err error
	f.meta, err = s.WriteDirMeta(&object.DirMetaObj{Mode: object.ModeDir | 0o755})
	require.NoError(t, err)
	f.file, err = s.WriteFile(&object.FileInfo{Mode: object.ModeRegular | 0o644}, nil, strings.NewReader(content))
	require.NoError(t, err)
	f.tree, err = s.WriteDirTree(&object.DirTreeObj{Files: []object.DirTreeFile{{Name: "hello.txt", Checksum: f.file}}})
	require.NoError(t, err)
	f.commit, err = s.WriteCommit(&object.CommitObj{
		Subject:   subject,
		Timestamp: 1700000000,
		RootTree:  f.tree,
		RootMeta:  f.meta,
	})
	require.NoError(t, err)
	return f
}

// corruptLastByte rewrites the final byte of a loose object.
func corruptLastByte(t *testing.T, s *object.Store, name object.ObjectName, b byte) {
	t.Helper()
	path := s.LoosePath(name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] = b
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRunEmptyRepository(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	var out bytes.Buffer

	report, err := New(s, Options{Out: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Objects)
	assert.Zero(t, report.Commits)
	assert.Zero(t, report.Checked)
	assert.Equal(t,
		"Enumerating objects...\n"+
			"Verifying content integrity of 0 commit objects...\n"+
			"Verifying structure of pack files...\n",
		out.String())
}

func TestRunQuietSuppressesProgress(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	writeCommit(t, s, "hello", "quiet")
	var out bytes.Buffer

	_, err := New(s, Options{Out: &out, Quiet: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestRunHealthyRepository(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	writeCommit(t, s, "hello", "first")
	var out bytes.Buffer

	report, err := New(s, Options{Out: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Objects)
	assert.Equal(t, 4, report.Loose)
	assert.Equal(t, 1, report.Commits)
	assert.Equal(t, 4, report.Reachable)
	assert.Equal(t, 4, report.Checked)
	assert.Empty(t, report.Corrupted)
	assert.Contains(t, out.String(), "Verifying content integrity of 1 commit objects...\n")
}

func TestRunArchiveRepository(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{Mode: object.ModeArchive, Codec: object.CodecZstd})
	writeCommit(t, s, strings.Repeat("archived content ", 64), "archive")

	report, err := New(s, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Reachable)
	assert.Equal(t, 4, report.Checked)
}

func TestRunDetectsCorruptedFile(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	f := writeCommit(t, s, "hello", "first")
	name := f.fileName(s)
	corruptLastByte(t, s, name, 'x')

	report, err := New(s, Options{}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrChecksumMismatch)

	var mismatch *object.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, name, mismatch.Name)
	assert.NotEqual(t, f.file, mismatch.Actual)
	assert.Equal(t, s.LoosePath(name), mismatch.Path)
	assert.Contains(t, err.Error(), "corrupted object "+name.String()+"; actual checksum: ")

	assert.Equal(t, []object.ObjectName{name}, report.Corrupted)
	assert.Zero(t, report.Packs)
	assert.True(t, s.HasLoose(name))
}

func TestRunDetectsCorruptedArchivedContent(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{Mode: object.ModeArchive, Codec: object.CodecNone})
	f := writeCommit(t, s, "hello", "first")
	corruptLastByte(t, s, object.ObjectName{Checksum: f.file, Type: object.TypeArchivedFileContent}, 'x')

	_, err := New(s, Options{}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrChecksumMismatch)
}

func TestRunTreatsUndecodableArchivedContentAsCorruption(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{Mode: object.ModeArchive, Codec: object.CodecZstd})
	f := writeCommit(t, s, strings.Repeat("hello world ", 64), "first")
	contentName := object.ObjectName{Checksum: f.file, Type: object.TypeArchivedFileContent}
	path := s.LoosePath(contentName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	report, err := New(s, Options{Delete: true, KeepGoing: true}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrCorruptContent)

	var cce *object.CorruptContentError
	require.ErrorAs(t, err, &cce)
	metaName := f.fileName(s)
	assert.Equal(t, metaName, cce.Name)
	assert.Equal(t, path, cce.Path)
	assert.Equal(t, []object.ObjectName{metaName}, report.Corrupted)
	assert.Equal(t, []object.ObjectName{metaName}, report.Deleted)
	assert.False(t, s.HasLoose(metaName))
	assert.Equal(t, 4, report.Checked)
}

func TestRunDeleteRemovesCorruptedObject(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	f := writeCommit(t, s, "hello", "first")
	name := f.fileName(s)
	corruptLastByte(t, s, name, 'x')

	log, hook := logtest.NewNullLogger()
	report, err := New(s, Options{Delete: true, Logger: log}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrChecksumMismatch)
	assert.Equal(t, []object.ObjectName{name}, report.Deleted)
	assert.False(t, s.HasLoose(name))

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "deleted corrupted object", last.Message)
	assert.Equal(t, f.file, last.Data["checksum"])

	// The tree still names the deleted file.
	_, err = New(s, Options{}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrObjectNotFound)
}

func TestRunKeepGoingReportsFirstCorruption(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	a := writeCommit(t, s, "hello", "first")
	b := writeCommit(t, s, "world", "second")
	names := []object.ObjectName{a.fileName(s), b.fileName(s)}
	object.SortObjectNames(names)
	for _, name := range names {
		corruptLastByte(t, s, name, '!')
	}

	report, err := New(s, Options{Delete: true, KeepGoing: true}).Run(context.Background())
	var mismatch *object.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, names[0], mismatch.Name)
	assert.Equal(t, names, report.Corrupted)
	assert.Equal(t, names, report.Deleted)
	// Both commits share the root DirMeta.
	assert.Equal(t, 7, report.Checked)
	assert.Zero(t, report.Packs)
}

func TestRunStopsAtFirstCorruptionWithoutKeepGoing(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	a := writeCommit(t, s, "hello", "first")
	b := writeCommit(t, s, "world", "second")
	corruptLastByte(t, s, a.fileName(s), '!')
	corruptLastByte(t, s, b.fileName(s), '!')

	report, err := New(s, Options{Delete: true}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrChecksumMismatch)
	assert.Len(t, report.Corrupted, 1)
	assert.Len(t, report.Deleted, 1)
}

func TestRunDeletePackOnlyObjectFails(t *testing.T) {
	root := t.TempDir()
	s := object.NewStore(root, object.StoreOptions{})
	f := writeCommit(t, s, "hello", "first")
	summary, err := s.PackObjects(context.Background(), object.PackOptions{Prune: true})
	require.NoError(t, err)

	packPath := s.PackDataPath(summary.Pack)
	data, err := os.ReadFile(packPath)
	require.NoError(t, err)
	pos := -1
	for i := bytes.Index(data, []byte("hello")); i >= 0; {
		if i+5 == len(data) || data[i+5] != '.' {
			pos = i
			break
		}
		next := bytes.Index(data[i+1:], []byte("hello"))
		if next < 0 {
			break
		}
		i += 1 + next
	}
	require.GreaterOrEqual(t, pos, 0)
	data[pos+4] = 'x'
	require.NoError(t, os.WriteFile(packPath, data, 0o644))

	fresh := object.NewStore(root, object.StoreOptions{})
	_, err = New(fresh, Options{Delete: true}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrChecksumMismatch)
	require.ErrorIs(t, err, object.ErrObjectNotFound)

	var mismatch *object.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, f.fileName(fresh), mismatch.Name)
	assert.Equal(t, packPath, mismatch.Path)
}

func TestRunDetectsPackOffsetOutOfRange(t *testing.T) {
	root := t.TempDir()
	s := object.NewStore(root, object.StoreOptions{})
	writeCommit(t, s, "hello", "first")
	summary, err := s.PackObjects(context.Background(), object.PackOptions{})
	require.NoError(t, err)

	idxPath := s.PackIndexPath(summary.Pack)
	raw, err := os.ReadFile(idxPath)
	require.NoError(t, err)
	binary.BigEndian.PutUint64(raw[packIndexOffsetPos:], 1<<40)
	require.NoError(t, os.WriteFile(idxPath, raw, 0o644))

	fresh := object.NewStore(root, object.StoreOptions{})
	report, err := New(fresh, Options{}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrPackCorrupt)

	var pce *object.PackCorruptError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, summary.Pack, pce.Pack)
	assert.Equal(t, object.PackReasonOffsetRange, pce.Reason)
	assert.Contains(t, err.Error(), "larger than file size")
	assert.Equal(t, 4, report.Checked)
	assert.Zero(t, report.Packs)
}

func TestRunDetectsPackOffsetOutOfRangeWithoutLooseCopies(t *testing.T) {
	root := t.TempDir()
	s := object.NewStore(root, object.StoreOptions{})
	writeCommit(t, s, "hello", "first")
	summary, err := s.PackObjects(context.Background(), object.PackOptions{Prune: true})
	require.NoError(t, err)

	idxPath := s.PackIndexPath(summary.Pack)
	raw, err := os.ReadFile(idxPath)
	require.NoError(t, err)
	const entrySize = 1 + object.DigestSize + 8
	for i := 0; i < summary.PackedObjects; i++ {
		binary.BigEndian.PutUint64(raw[packIndexOffsetPos+i*entrySize:], 1<<40)
	}
	require.NoError(t, os.WriteFile(idxPath, raw, 0o644))

	fresh := object.NewStore(root, object.StoreOptions{})
	report, err := New(fresh, Options{}).Run(context.Background())
	require.ErrorIs(t, err, object.ErrPackCorrupt)

	var pce *object.PackCorruptError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, summary.Pack, pce.Pack)
	assert.Equal(t, object.PackReasonOffsetRange, pce.Reason)
	assert.Equal(t, idxPath, pce.Path)
	assert.Zero(t, report.Checked)
}

func TestRunVerifiesPacks(t *testing.T) {
	root := t.TempDir()
	s := object.NewStore(root, object.StoreOptions{})
	writeCommit(t, s, "hello", "first")
	_, err := s.PackObjects(context.Background(), object.PackOptions{Compress: true})
	require.NoError(t, err)

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	report, err := New(s, Options{Logger: log}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Objects)
	assert.Equal(t, 4, report.Loose)
	assert.Equal(t, 4, report.Packed)
	assert.Equal(t, 1, report.Packs)

	var verified int
	for _, e := range hook.AllEntries() {
		if e.Message == "verified object" {
			verified++
		}
	}
	assert.Equal(t, 4, verified)
}

func TestRunCanceled(t *testing.T) {
	s := object.NewStore(t.TempDir(), object.StoreOptions{})
	writeCommit(t, s, "hello", "first")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s, Options{}).Run(ctx)
	require.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}
