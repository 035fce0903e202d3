package object

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies how ArchivedFileContent bytes are compressed. The value is
// stored in the ArchivedFileMeta object.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

// DefaultCodec is used by archive repositories that do not name one.
const DefaultCodec = CodecZstd

var errIncompressible = errors.New("data is incompressible")

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec name. The empty string selects DefaultCodec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "":
		return DefaultCodec, nil
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression codec %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("object: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("object: zstd decoder: " + err.Error())
	}
}

// compressContent compresses data with codec. When the codec cannot shrink
// the data it falls back to CodecNone; the returned codec is the one actually
// applied.
func compressContent(data []byte, codec Codec) ([]byte, Codec, error) {
	var (
		out []byte
		err error
	)
	switch codec {
	case CodecNone:
		return data, CodecNone, nil
	case CodecLZ4:
		out, err = compressLZ4(data)
	case CodecZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported codec %d", codec)
	}
	if errors.Is(err, errIncompressible) {
		return data, CodecNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, codec, nil
}

// decompressContent reverses compressContent. The result must be exactly
// size bytes long.
func decompressContent(data []byte, codec Codec, size uint64) ([]byte, error) {
	switch codec {
	case CodecNone:
		if uint64(len(data)) != size {
			return nil, fmt.Errorf("uncompressed content is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case CodecLZ4:
		return decompressLZ4(data, size)
	case CodecZstd:
		return decompressZstd(data, size)
	default:
		return nil, fmt.Errorf("unsupported codec %d", codec)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

// lz4 cannot expand a block by more than 255x, so larger declared sizes are
// rejected before allocating.
const lz4MaxRatio = 255

func decompressLZ4(data []byte, size uint64) ([]byte, error) {
	if size > uint64(len(data))*lz4MaxRatio+16 {
		return nil, fmt.Errorf("lz4 decompress: declared size %d too large for %d input bytes", size, len(data))
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if uint64(n) != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
	}
	return dst, nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}

const zstdPreallocLimit = 64 << 20

func decompressZstd(data []byte, size uint64) ([]byte, error) {
	hint := size
	if hint > zstdPreallocLimit {
		hint = zstdPreallocLimit
	}
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, hint))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
	}
	return out, nil
}
