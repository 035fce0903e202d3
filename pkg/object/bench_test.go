package object

import (
	"bytes"
	"context"
	"fmt"
	"testing"
)

func BenchmarkChecksumFile(b *testing.B) {
	content := bytes.Repeat([]byte("0123456789abcdef"), 64<<10/16)
	info := &FileInfo{Mode: ModeRegular | 0o644}
	for _, alg := range []Algorithm{AlgorithmSHA256, AlgorithmBLAKE2b, AlgorithmBLAKE3} {
		b.Run(string(alg), func(b *testing.B) {
			b.SetBytes(int64(len(content)))
			for i := 0; i < b.N; i++ {
				if _, err := ChecksumFile(alg, info, nil, bytes.NewReader(content)); err != nil {
					b.Fatalf("ChecksumFile: %v", err)
				}
			}
		})
	}
}

func BenchmarkStoreWriteUniqueFile(b *testing.B) {
	for _, mode := range []Mode{ModeBare, ModeArchive} {
		b.Run(string(mode), func(b *testing.B) {
			s := NewStore(b.TempDir(), StoreOptions{Mode: mode, Codec: CodecZstd})
			info := &FileInfo{Mode: ModeRegular | 0o644}
			for i := 0; i < b.N; i++ {
				payload := []byte(fmt.Sprintf("file-%d %s", i, bytes.Repeat([]byte("x"), 512)))
				if _, err := s.WriteFile(info, nil, bytes.NewReader(payload)); err != nil {
					b.Fatalf("WriteFile: %v", err)
				}
			}
		})
	}
}

func BenchmarkTraverseCommit(b *testing.B) {
	s := NewStore(b.TempDir(), StoreOptions{})
	meta, err := s.WriteDirMeta(testDirMeta())
	if err != nil {
		b.Fatalf("WriteDirMeta: %v", err)
	}
	tree := &DirTreeObj{}
	for i := 0; i < 256; i++ {
		h, err := s.WriteFile(&FileInfo{Mode: ModeRegular | 0o644}, nil, bytes.NewReader([]byte(fmt.Sprintf("%d", i))))
		if err != nil {
			b.Fatalf("WriteFile: %v", err)
		}
		tree.Files = append(tree.Files, DirTreeFile{Name: fmt.Sprintf("f%03d", i), Checksum: h})
	}
	root, err := s.WriteDirTree(tree)
	if err != nil {
		b.Fatalf("WriteDirTree: %v", err)
	}
	commit, err := s.WriteCommit(&CommitObj{Subject: "bench", RootTree: root, RootMeta: meta})
	if err != nil {
		b.Fatalf("WriteCommit: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reachable := NewReachable()
		if err := s.TraverseCommit(context.Background(), commit, TraverseNone, reachable); err != nil {
			b.Fatalf("TraverseCommit: %v", err)
		}
		if len(reachable) != 259 {
			b.Fatalf("reachable = %d, want 259", len(reachable))
		}
	}
}
