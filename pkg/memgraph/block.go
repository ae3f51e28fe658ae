package memgraph

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/x448/float16"
)

// Block layout: uint32 dimension count (little endian), the vector as
// IEEE 754 half-precision bits, then the JSON-encoded properties.
//
// CIDs are CIDv1 with the dag-cbor codec and a sha2-256 multihash, rendered
// in lowercase base32 with the "b" multibase prefix, which yields the
// familiar "bafyrei..." form.

const (
	cidVersion1    = 0x01
	codecDagCBOR   = 0x71
	hashSHA2_256   = 0x12
	sha256Length   = 0x20
	multibaseB32   = "b"
	blockKeyPrefix = "blk:"
)

var cidEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

var errShortBlock = errors.New("memgraph: block is truncated")

func blockKey(cid string) string { return blockKeyPrefix + cid }

// encodeBlock serializes a vector and its properties.
func encodeBlock(vector []float32, props map[string]any) ([]byte, error) {
	meta, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("memgraph: properties are not JSON-encodable: %w", err)
	}
	buf := make([]byte, 4+2*len(vector), 4+2*len(vector)+len(meta))
	binary.LittleEndian.PutUint32(buf, uint32(len(vector)))
	for i, v := range vector {
		binary.LittleEndian.PutUint16(buf[4+2*i:], float16.Fromfloat32(v).Bits())
	}
	return append(buf, meta...), nil
}

// decodeBlockVector returns only the vector part of a block.
func decodeBlockVector(block []byte) ([]float32, error) {
	if len(block) < 4 {
		return nil, errShortBlock
	}
	n := int(binary.LittleEndian.Uint32(block))
	if len(block) < 4+2*n {
		return nil, errShortBlock
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(block[4+2*i:])).Float32()
	}
	return out, nil
}

// decodeBlock returns the vector and properties stored in a block.
func decodeBlock(block []byte) ([]float32, map[string]any, error) {
	vec, err := decodeBlockVector(block)
	if err != nil {
		return nil, nil, err
	}
	var props map[string]any
	if meta := block[4+2*len(vec):]; len(meta) > 0 {
		if err := json.Unmarshal(meta, &props); err != nil {
			return nil, nil, fmt.Errorf("memgraph: corrupt block properties: %w", err)
		}
	}
	return vec, props, nil
}

// computeCID derives the content identifier of a block.
func computeCID(block []byte) string {
	digest := sha256.Sum256(block)
	raw := make([]byte, 0, 4+len(digest))
	raw = append(raw, cidVersion1, codecDagCBOR, hashSHA2_256, sha256Length)
	raw = append(raw, digest[:]...)
	return multibaseB32 + cidEncoding.EncodeToString(raw)
}
