package codec

import (
	"encoding/binary"
	"testing"
)

// buildPackedEpoch assembles a packed-epoch blob from a sequence of raw
// block payloads, matching the [size][block][padding] record framing
// EpochBlocks expects.
func buildPackedEpoch(blocks [][]byte) []byte {
	buf := make([]byte, epochHeaderLen)
	for _, b := range blocks {
		sizePrefix := make([]byte, 4)
		binary.BigEndian.PutUint32(sizePrefix, uint32(len(b)))
		buf = append(buf, sizePrefix...)
		buf = append(buf, b...)
		if pad := len(b) % epochPackAlignment; pad != 0 {
			buf = append(buf, make([]byte, epochPackAlignment-pad)...)
		}
	}
	return buf
}

func TestEpochBlocks(t *testing.T) {
	blocks := [][]byte{
		{0x01, 0x02, 0x03},
		{0xaa, 0xbb, 0xcc, 0xdd, 0xee},
		{0xff},
	}
	blob := buildPackedEpoch(blocks)

	got, err := EpochBlocks(blob, false)
	if err != nil {
		t.Fatalf("EpochBlocks: %v", err)
	}
	if len(got) != len(blocks) {
		t.Fatalf("got %d blocks, want %d", len(got), len(blocks))
	}
	for i, b := range blocks {
		if string(got[i]) != string(b) {
			t.Errorf("block %d = %x, want %x", i, got[i], b)
		}
	}
}

func TestEpochBlocks_OmitEBB(t *testing.T) {
	blocks := [][]byte{{0x01}, {0x02, 0x03}}
	blob := buildPackedEpoch(blocks)

	got, err := EpochBlocks(blob, true)
	if err != nil {
		t.Fatalf("EpochBlocks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d blocks, want 1", len(got))
	}
	if string(got[0]) != string(blocks[1]) {
		t.Errorf("remaining block = %x, want %x", got[0], blocks[1])
	}
}

func TestEpochBlocks_EmptyBlob(t *testing.T) {
	blob := buildPackedEpoch(nil)
	got, err := EpochBlocks(blob, true)
	if err != nil {
		t.Fatalf("EpochBlocks: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d blocks, want 0", len(got))
	}
}

func TestEpochBlocks_TooShortForHeader(t *testing.T) {
	if _, err := EpochBlocks([]byte{0x01, 0x02}, false); err == nil {
		t.Error("expected error for blob shorter than header, got nil")
	}
}

func TestEpochBlocks_TruncatedRecord(t *testing.T) {
	blob := buildPackedEpoch([][]byte{{0x01, 0x02, 0x03, 0x04}})
	truncated := blob[:len(blob)-2]
	if _, err := EpochBlocks(truncated, false); err == nil {
		t.Error("expected error for truncated record, got nil")
	}
}
