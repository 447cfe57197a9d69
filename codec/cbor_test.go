package codec

import (
	"bytes"
	"testing"
)

func TestCanonicalMarshal_SortsMapKeys(t *testing.T) {
	// Canonical CBOR orders map keys by encoded byte length then value, so a
	// map built with keys in reverse order must still serialize identically
	// to one built in sorted order.
	a, err := CanonicalMarshal(map[any]any{uint64(2): "b", uint64(1): "a"})
	if err != nil {
		t.Fatalf("CanonicalMarshal: %v", err)
	}
	b, err := CanonicalMarshal(map[any]any{uint64(1): "a", uint64(2): "b"})
	if err != nil {
		t.Fatalf("CanonicalMarshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("canonical encoding not key-order independent: %x vs %x", a, b)
	}
}

func TestIndefiniteArray_Framing(t *testing.T) {
	items := []any{uint64(1), uint64(2)}
	raw, err := indefiniteArray(items)
	if err != nil {
		t.Fatalf("indefiniteArray: %v", err)
	}
	if len(raw) < 2 {
		t.Fatalf("encoded array too short: %x", []byte(raw))
	}
	if raw[0] != 0x9f {
		t.Errorf("missing indefinite-array start byte: got %#x", raw[0])
	}
	if raw[len(raw)-1] != 0xff {
		t.Errorf("missing indefinite-array break byte: got %#x", raw[len(raw)-1])
	}
}

func TestIndefiniteArray_Empty(t *testing.T) {
	raw, err := indefiniteArray(nil)
	if err != nil {
		t.Fatalf("indefiniteArray: %v", err)
	}
	if !bytes.Equal(raw, []byte{0x9f, 0xff}) {
		t.Errorf("empty indefinite array = %x, want 9fff", []byte(raw))
	}
}

func TestDecodeAny_RoundTripsArray(t *testing.T) {
	encoded, err := canonicalMarshal([]any{uint64(1), []byte("hi"), "text"})
	if err != nil {
		t.Fatalf("canonicalMarshal: %v", err)
	}
	decoded, err := decodeAny(encoded)
	if err != nil {
		t.Fatalf("decodeAny: %v", err)
	}
	arr, err := asArray(decoded)
	if err != nil {
		t.Fatalf("asArray: %v", err)
	}
	if len(arr) != 3 {
		t.Fatalf("len(arr) = %d, want 3", len(arr))
	}
	n, err := asUint64(arr[0])
	if err != nil || n != 1 {
		t.Errorf("arr[0] = %v, %v, want 1, nil", n, err)
	}
}
