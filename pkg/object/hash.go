package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// DigestSize is the raw length of every supported digest.
const DigestSize = 32

// Algorithm names the digest function of a repository. It is fixed when the
// repository is created; every object and pack in a store uses the same one.
type Algorithm string

const (
	AlgorithmSHA256  Algorithm = "sha256"
	AlgorithmBLAKE2b Algorithm = "blake2b-256"
	AlgorithmBLAKE3  Algorithm = "blake3"
)

// DefaultAlgorithm is used when a repository does not name one.
const DefaultAlgorithm = AlgorithmSHA256

// ParseAlgorithm validates an algorithm name. The empty string selects
// DefaultAlgorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "":
		return DefaultAlgorithm, nil
	case AlgorithmSHA256, AlgorithmBLAKE2b, AlgorithmBLAKE3:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", s)
	}
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case AlgorithmBLAKE2b:
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	case AlgorithmBLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

func sumHex(h hash.Hash) Hash {
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ChecksumBytes digests data with no envelope.
func ChecksumBytes(alg Algorithm, data []byte) Hash {
	h := alg.New()
	h.Write(data)
	return sumHex(h)
}

// checksumDomain maps an object type to the type whose envelope is used for
// its digest. Both file representations share the RawFile domain.
func checksumDomain(t ObjectType) ObjectType {
	if t == TypeArchivedFileMeta || t == TypeArchivedFileContent {
		return TypeRawFile
	}
	return t
}

func envelopeHeader(t ObjectType, n int) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", checksumDomain(t), n))
}

// WrapMetadata returns the type-tagged form of a metadata object that is fed
// to the digest: "type len\0data".
func WrapMetadata(t ObjectType, data []byte) []byte {
	header := envelopeHeader(t, len(data))
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	return append(out, data...)
}

// ChecksumMetadata computes the checksum of a commit, dirtree or dirmeta from
// its canonical bytes.
func ChecksumMetadata(alg Algorithm, t ObjectType, data []byte) Hash {
	h := alg.New()
	h.Write(envelopeHeader(t, len(data)))
	h.Write(data)
	return sumHex(h)
}

// ChecksumFile computes the checksum of a file object from its metadata and
// content. The digest covers "file len\0" followed by the canonical header and
// the content bytes, so a metadata-only change alters the checksum. content
// is read to EOF; callers must treat it as exhausted afterwards.
func ChecksumFile(alg Algorithm, info *FileInfo, xattrs []Xattr, content io.Reader) (Hash, error) {
	header := MarshalFileHeader(info, xattrs)
	h := alg.New()
	h.Write(envelopeHeader(TypeRawFile, len(header)))
	h.Write(header)
	if content != nil {
		if _, err := io.Copy(h, content); err != nil {
			return "", fmt.Errorf("checksum file content: %w", err)
		}
	}
	return sumHex(h), nil
}

// newFileHasher returns a hash primed with the file envelope and header; the
// caller writes the content into it.
func newFileHasher(alg Algorithm, header []byte) hash.Hash {
	h := alg.New()
	h.Write(envelopeHeader(TypeRawFile, len(header)))
	h.Write(header)
	return h
}

// ValidateChecksum reports whether h is 64 lowercase hex characters.
func ValidateChecksum(h Hash) error {
	if len(h) != DigestSize*2 {
		return fmt.Errorf("checksum length must be %d hex chars, got %d", DigestSize*2, len(h))
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid checksum %q", h)
		}
	}
	return nil
}

func hashHexToBytes(h Hash) ([]byte, error) {
	if err := ValidateChecksum(h); err != nil {
		return nil, err
	}
	return hex.DecodeString(string(h))
}

func hashFromBytes(raw []byte) (Hash, error) {
	if len(raw) != DigestSize {
		return "", fmt.Errorf("checksum must be %d bytes, got %d", DigestSize, len(raw))
	}
	return Hash(hex.EncodeToString(raw)), nil
}
