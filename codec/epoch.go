package codec

import (
	"encoding/binary"
	"fmt"
)

// epochHeaderLen is the fixed-size header ("pack" magic + version) at the
// start of a packed-epoch blob, skipped before the record sequence begins.
const epochHeaderLen = 16

// epochPackAlignment is the byte boundary each record (size prefix + block +
// padding) is aligned to.
const epochPackAlignment = 4

// EpochBlocks decodes a packed-epoch blob into its sequence of raw block
// blobs, in order. A packed epoch is epochHeaderLen bytes of header followed
// by a sequence of records, each [uint32_be size][size bytes of block][0-3
// bytes of zero padding to the next 4-byte boundary].
//
// When omitEBB is true, the first record (the epoch's boundary block) is
// dropped from the result.
func EpochBlocks(raw []byte, omitEBB bool) ([][]byte, error) {
	if len(raw) < epochHeaderLen {
		return nil, fmt.Errorf("packed epoch: blob shorter than header (%d bytes)", len(raw))
	}
	pos := epochHeaderLen
	var blocks [][]byte
	for pos < len(raw) {
		if pos+4 > len(raw) {
			return nil, fmt.Errorf("packed epoch: truncated record length at offset %d", pos)
		}
		size := binary.BigEndian.Uint32(raw[pos : pos+4])
		pos += 4
		end := pos + int(size)
		if end > len(raw) {
			return nil, fmt.Errorf("packed epoch: record at offset %d (size %d) exceeds blob length", pos, size)
		}
		blocks = append(blocks, raw[pos:end])
		pos = end
		if pad := pos % epochPackAlignment; pad != 0 {
			pos += epochPackAlignment - pad
		}
	}
	if omitEBB && len(blocks) > 0 {
		blocks = blocks[1:]
	}
	return blocks, nil
}
