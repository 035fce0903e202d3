package object

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Commit metadata is an open-ended dictionary, so it is the one part of an
// object encoded with CBOR. The options pin a canonical form: sorted map
// keys, definite lengths, fixed-width floats, integer times.
var metadataEncOptions = cbor.EncOptions{
	Sort:          cbor.SortCanonical,
	ShortestFloat: cbor.ShortestFloatNone,
	Time:          cbor.TimeUnix,
	TimeTag:       cbor.EncTagNone,
	IndefLength:   cbor.IndefLengthForbidden,
	BigIntConvert: cbor.BigIntConvertShortest,
}

var metadataDecOptions = cbor.DecOptions{
	MaxArrayElements: 10000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  32,
	IndefLength:      cbor.IndefLengthForbidden,
	DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	BignumTag:        cbor.BignumTagForbidden,
	TimeTag:          cbor.DecTagIgnored,
}

var (
	metadataEnc cbor.EncMode
	metadataDec cbor.DecMode
)

func init() {
	var err error
	metadataEnc, err = metadataEncOptions.EncMode()
	if err != nil {
		panic("object: metadata cbor encoder: " + err.Error())
	}
	metadataDec, err = metadataDecOptions.DecMode()
	if err != nil {
		panic("object: metadata cbor decoder: " + err.Error())
	}
}

// MarshalCommitMetadata encodes a commit metadata dictionary. An empty or nil
// dictionary encodes to zero bytes.
func MarshalCommitMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	return metadataEnc.Marshal(meta)
}

// UnmarshalCommitMetadata decodes a metadata dictionary and rejects encodings
// that are not canonical, since a non-canonical dictionary would give two
// checksums to one logical commit.
func UnmarshalCommitMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := metadataDec.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("empty dictionary must be encoded as zero bytes")
	}
	again, err := metadataEnc.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(again, data) {
		return nil, fmt.Errorf("non-canonical encoding")
	}
	return meta, nil
}
