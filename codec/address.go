package codec

import (
	"hash/crc32"

	"github.com/mr-tron/base58"
)

// longAddressThreshold and the truncation split are spec-fixed: an address
// over 1000 characters is stored as first 497 + "..." + last 500. This is
// lossy and not spendable, but deterministic, which is all the store needs.
const (
	longAddressThreshold = 1000
	longAddressHeadLen   = 497
	longAddressTailLen   = 500
)

// TruncateAddress applies the long-address storage rule. Addresses at or
// under the threshold pass through unchanged.
func TruncateAddress(addr string) string {
	if len(addr) <= longAddressThreshold {
		return addr
	}
	head := addr[:longAddressHeadLen]
	tail := addr[len(addr)-longAddressTailLen:]
	return head + "..." + tail
}

func base58Encode(b []byte) string {
	return base58.Encode(b)
}

func base58Decode(s string) ([]byte, error) {
	return base58.Decode(s)
}

func crc32Sum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Base58Encode and Base58Decode are exported for genesis's AVVM address
// derivation and submit validation's address teardown, which otherwise have
// no reason to import mr-tron/base58 directly.
func Base58Encode(b []byte) string {
	return base58Encode(b)
}

func Base58Decode(s string) ([]byte, error) {
	return base58Decode(s)
}
