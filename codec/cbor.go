// Package codec decodes the Cardano Byron bridge's binary block, epoch, and
// transaction payloads and derives the block/tx/UTXO identities the rest of
// the importer keys its store by.
package codec

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// addressTagNumber is the CBOR tag Byron wraps addresses and signed
// witnesses in (tag 24: "encoded CBOR data item", holding a byte string that
// is itself a CBOR-encoded value).
const addressTagNumber = 24

var canonicalEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: build canonical cbor encoder: %v", err))
	}
	return mode
}

// canonicalMarshal encodes v using RFC 7049 canonical form: sorted map keys,
// shortest-form integers, definite-length arrays. This is the byte-exact
// form the Blake2b hashes in this package depend on.
func canonicalMarshal(v any) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

// CanonicalMarshal is the exported form of canonicalMarshal, for callers
// outside this package (genesis and submit validation) that need to hash
// their own CBOR structures the same way tx/block ids do.
func CanonicalMarshal(v any) ([]byte, error) {
	return canonicalMarshal(v)
}

// indefiniteArray CBOR-encodes items as an indefinite-length array
// (0x9f ... 0xff). fxamacker/cbor's canonical mode never emits these, but
// the Cardano tx-id hash is defined over exactly this framing for the
// inputs and outputs arrays (spec: "indefinite-length markers ... are part
// of the hashed bytes").
func indefiniteArray(items []any) (cbor.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte(0x9f)
	for i, item := range items {
		b, err := canonicalMarshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode indefinite array item %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(0xff)
	return cbor.RawMessage(buf.Bytes()), nil
}

// decodeAny decodes a single top-level CBOR value into Go's loosely-typed
// representation: []any for arrays, cbor.Tag for tagged values, []byte for
// byte strings, string for text, uint64/int64 for integers, map[any]any for
// maps.
func decodeAny(data []byte) (any, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode cbor: %w", err)
	}
	return v, nil
}

// asArray requires v to be a CBOR array and returns its elements.
func asArray(v any) ([]any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected cbor array, got %T", v)
	}
	return arr, nil
}

// arrayElem returns element i of a decoded CBOR array, erroring on index
// or length mismatch.
func arrayElem(v any, i int) (any, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(arr) {
		return nil, fmt.Errorf("cbor array index %d out of range (len %d)", i, len(arr))
	}
	return arr[i], nil
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("expected non-negative integer, got %d", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("expected cbor uint, got %T", v)
	}
}

func asBytes(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("expected cbor byte string, got %T", v)
	}
	return b, nil
}

func asTag(v any) (cbor.Tag, error) {
	t, ok := v.(cbor.Tag)
	if !ok {
		return cbor.Tag{}, fmt.Errorf("expected cbor tag, got %T", v)
	}
	return t, nil
}

// WrappedAddress mirrors the Byron on-chain address envelope:
// CBOR([ CborTag(24, tagBody), crc32(tagBody) ]) where tagBody is the
// canonical CBOR encoding of [addressRoot, addrAttributes, addressType].
type WrappedAddress struct {
	Root  []byte
	Attrs map[any]any
	Type  uint64
}

// EncodeWrappedAddress builds the on-chain byte form of a Byron address
// given its root hash, attributes, and type tag, then base58-encodes it.
// Used directly by the genesis loader to derive AVVM redeem addresses.
func EncodeWrappedAddress(root []byte, attrs map[any]any, addrType uint64) (string, error) {
	return encodeWrappedAddress(root, attrs, addrType)
}

func encodeWrappedAddress(root []byte, attrs map[any]any, addrType uint64) (string, error) {
	tagBody, err := canonicalMarshal([]any{root, attrs, addrType})
	if err != nil {
		return "", fmt.Errorf("encode address tag body: %w", err)
	}
	checksum := crc32Sum(tagBody)
	addrBytes, err := canonicalMarshal([]any{
		cbor.Tag{Number: addressTagNumber, Content: tagBody},
		checksum,
	})
	if err != nil {
		return "", fmt.Errorf("encode wrapped address: %w", err)
	}
	return base58Encode(addrBytes), nil
}

// DecodeWrappedAddress is the inverse of EncodeWrappedAddress: base58-decode
// then unwrap the tag(24, tagBody) envelope into [root, attrs, type]. Used
// by submit validation to deconstruct an output's address for the witness
// and network-magic checks.
func DecodeWrappedAddress(addr string) (*WrappedAddress, error) {
	return decodeWrappedAddress(addr)
}

func decodeWrappedAddress(addr string) (*WrappedAddress, error) {
	raw, err := base58Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("base58 decode address: %w", err)
	}
	outer, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}
	tagVal, err := arrayElem(outer, 0)
	if err != nil {
		return nil, fmt.Errorf("address envelope: %w", err)
	}
	tag, err := asTag(tagVal)
	if err != nil {
		return nil, fmt.Errorf("address envelope: %w", err)
	}
	if tag.Number != addressTagNumber {
		return nil, fmt.Errorf("address envelope: unexpected tag %d", tag.Number)
	}
	tagBody, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("address envelope: tag content is %T, want []byte", tag.Content)
	}
	inner, err := decodeAny(tagBody)
	if err != nil {
		return nil, fmt.Errorf("address tag body: %w", err)
	}
	rootVal, err := arrayElem(inner, 0)
	if err != nil {
		return nil, fmt.Errorf("address root: %w", err)
	}
	root, err := asBytes(rootVal)
	if err != nil {
		return nil, fmt.Errorf("address root: %w", err)
	}
	attrsVal, err := arrayElem(inner, 1)
	if err != nil {
		return nil, fmt.Errorf("address attrs: %w", err)
	}
	attrs, _ := attrsVal.(map[any]any)
	typeVal, err := arrayElem(inner, 2)
	if err != nil {
		return nil, fmt.Errorf("address type: %w", err)
	}
	addrType, err := asUint64(typeVal)
	if err != nil {
		return nil, fmt.Errorf("address type: %w", err)
	}
	return &WrappedAddress{Root: root, Attrs: attrs, Type: addrType}, nil
}
