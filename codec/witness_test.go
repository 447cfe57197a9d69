package codec

import (
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestDecodeWitnessPubKeys(t *testing.T) {
	pubKey1 := []byte{0x01, 0x02, 0x03}
	pubKey2 := []byte{0x04, 0x05, 0x06}

	inner1, err := canonicalMarshal([]any{pubKey1, []byte("sig1")})
	if err != nil {
		t.Fatalf("canonicalMarshal: %v", err)
	}
	inner2, err := canonicalMarshal([]any{pubKey2, []byte("sig2")})
	if err != nil {
		t.Fatalf("canonicalMarshal: %v", err)
	}
	witnesses := []any{
		[]any{uint64(0), cbor.Tag{Number: addressTagNumber, Content: inner1}},
		[]any{uint64(0), cbor.Tag{Number: addressTagNumber, Content: inner2}},
	}
	encoded, err := canonicalMarshal(witnesses)
	if err != nil {
		t.Fatalf("canonicalMarshal witnesses: %v", err)
	}

	pubKeys, err := DecodeWitnessPubKeys(hex.EncodeToString(encoded))
	if err != nil {
		t.Fatalf("DecodeWitnessPubKeys: %v", err)
	}
	if len(pubKeys) != 2 {
		t.Fatalf("got %d pub keys, want 2", len(pubKeys))
	}
	if string(pubKeys[0]) != string(pubKey1) {
		t.Errorf("pubKeys[0] = %x, want %x", pubKeys[0], pubKey1)
	}
	if string(pubKeys[1]) != string(pubKey2) {
		t.Errorf("pubKeys[1] = %x, want %x", pubKeys[1], pubKey2)
	}
}

func TestDecodeWitnessPubKeys_Empty(t *testing.T) {
	pubKeys, err := DecodeWitnessPubKeys("")
	if err != nil {
		t.Fatalf("DecodeWitnessPubKeys: %v", err)
	}
	if pubKeys != nil {
		t.Errorf("got %v, want nil", pubKeys)
	}
}

func TestDecodeWitnessPubKeys_InvalidHex(t *testing.T) {
	if _, err := DecodeWitnessPubKeys("zz"); err == nil {
		t.Error("expected error for invalid hex, got nil")
	}
}
