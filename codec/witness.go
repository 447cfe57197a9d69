package codec

import (
	"encoding/hex"
	"fmt"
)

// DecodeWitnessPubKeys decodes the hex-encoded canonical CBOR witnesses
// array produced by Tx.Witnesses back into the list of public keys it
// carries, in order. Submit validation uses these to
// recompute the address root a PkWitness actually signs for.
//
// Each witness is [type, tagged], and tagged unwraps to [pubkey,
// signature]; this returns pubkey for every witness, regardless of type,
// so the caller's index still lines up with tx.Inputs.
func DecodeWitnessPubKeys(witnessesHex string) ([][]byte, error) {
	if witnessesHex == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(witnessesHex)
	if err != nil {
		return nil, fmt.Errorf("decode witnesses hex: %w", err)
	}
	decoded, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("decode witnesses cbor: %w", err)
	}
	items, err := asArray(decoded)
	if err != nil {
		return nil, fmt.Errorf("witnesses: %w", err)
	}

	pubKeys := make([][]byte, 0, len(items))
	for i, item := range items {
		taggedVal, err := arrayElem(item, 1)
		if err != nil {
			return nil, fmt.Errorf("witness %d: %w", i, err)
		}
		tag, err := asTag(taggedVal)
		if err != nil {
			return nil, fmt.Errorf("witness %d: %w", i, err)
		}
		inner, err := decodeTagContent(tag)
		if err != nil {
			return nil, fmt.Errorf("witness %d: %w", i, err)
		}
		pubKeyVal, err := arrayElem(inner, 0)
		if err != nil {
			return nil, fmt.Errorf("witness %d pubkey: %w", i, err)
		}
		pubKey, err := asBytes(pubKeyVal)
		if err != nil {
			return nil, fmt.Errorf("witness %d pubkey: %w", i, err)
		}
		pubKeys = append(pubKeys, pubKey)
	}
	return pubKeys, nil
}
