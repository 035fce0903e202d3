package object

import (
	"bytes"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1024)
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		out, applied, err := compressContent(data, codec)
		if err != nil {
			t.Fatalf("%s: compress: %v", codec, err)
		}
		if applied != codec {
			t.Fatalf("%s: applied codec = %s", codec, applied)
		}
		back, err := decompressContent(out, applied, uint64(len(data)))
		if err != nil {
			t.Fatalf("%s: decompress: %v", codec, err)
		}
		if !bytes.Equal(back, data) {
			t.Fatalf("%s: round trip mismatch", codec)
		}
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 4096)
	for _, codec := range []Codec{CodecLZ4, CodecZstd} {
		out, _, err := compressContent(data, codec)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := decompressContent(out, codec, uint64(len(data)-1)); err == nil {
			t.Fatalf("%s: expected size mismatch error", codec)
		}
	}
	if _, err := decompressContent([]byte("abc"), CodecNone, 4); err == nil {
		t.Fatal("none: expected size mismatch error")
	}
}

func TestDecompressLZ4RejectsHugeDeclaredSize(t *testing.T) {
	if _, err := decompressLZ4([]byte{0x10}, 1<<40); err == nil {
		t.Fatal("expected error for implausible declared size")
	}
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{"": DefaultCodec, "none": CodecNone, "lz4": CodecLZ4, "zstd": CodecZstd} {
		got, err := ParseCodec(name)
		if err != nil || got != want {
			t.Errorf("ParseCodec(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseCodec("gzip"); err == nil {
		t.Error("expected error for gzip")
	}
}
