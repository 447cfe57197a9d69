// Package genesis loads a Cardano Byron network's genesis document into the
// store's initial UTXO set, covering both plain (nonAvvmBalances) and
// AVVM-redeemable (avvmDistr) allocations.
package genesis

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/blinklabs-community/byron-importer/codec"
	"github.com/blinklabs-community/byron-importer/store"
)

// avvmRedeemAddressType and the attribute shape are fixed by the Byron
// protocol's redeem-address encoding: address_type=2, empty attributes.
const avvmRedeemAddressType = 2

// Document is the subset of a genesis JSON document the loader cares about.
type Document struct {
	NonAvvmBalances map[string]string `json:"nonAvvmBalances"`
	AvvmDistr       map[string]string `json:"avvmDistr"`
}

// Load parses doc and, if the store has not already been seeded, emits the
// genesis UTXO set. It is safe to call on every startup: is_genesis_loaded
// makes the load idempotent.
func Load(st *store.Store, doc json.RawMessage) error {
	loaded, err := st.IsGenesisLoaded()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if loaded {
		return nil
	}

	var parsed Document
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return fmt.Errorf("genesis: decode document: %w", err)
	}

	utxos := make([]store.UtxoRecord, 0, len(parsed.NonAvvmBalances)+len(parsed.AvvmDistr))

	for address, amountStr := range parsed.NonAvvmBalances {
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			return fmt.Errorf("genesis: invalid nonAvvmBalances amount %q for %s", amountStr, address)
		}
		utxo, err := nonAvvmUtxo(address, amount)
		if err != nil {
			return fmt.Errorf("genesis: nonAvvmBalances %s: %w", address, err)
		}
		utxos = append(utxos, *utxo)
	}

	for pubKey, amountStr := range parsed.AvvmDistr {
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			return fmt.Errorf("genesis: invalid avvmDistr amount %q for %s", amountStr, pubKey)
		}
		utxo, err := avvmUtxo(pubKey, amount)
		if err != nil {
			return fmt.Errorf("genesis: avvmDistr %s: %w", pubKey, err)
		}
		utxos = append(utxos, *utxo)
	}

	if err := st.SaveUtxos(utxos); err != nil {
		return fmt.Errorf("genesis: save utxos: %w", err)
	}
	return nil
}

// nonAvvmUtxo builds the genesis UTXO for a plain address: utxo_hash is
// Blake2b-256 of the address's decoded bytes, reused as both the tx hash
// and (trivially) the UTXO id's only input.
func nonAvvmUtxo(address string, amount *big.Int) (*store.UtxoRecord, error) {
	addrBytes, err := codec.Base58Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	txHash := hex.EncodeToString(blake2bSum256(addrBytes))
	return &store.UtxoRecord{
		Id:       codec.UtxoId(txHash, 0),
		TxHash:   txHash,
		Index:    0,
		Address:  codec.TruncateAddress(address),
		Amount:   amount,
		BlockNum: 0,
	}, nil
}

// avvmUtxo derives a Byron redeem address from an AVVM public key and
// builds its genesis UTXO, per spec.md §4.4.
func avvmUtxo(pubKeyBase64URL string, amount *big.Int) (*store.UtxoRecord, error) {
	keyBytes, err := decodeBase64URL(pubKeyBase64URL)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}

	addrStructure := []any{avvmRedeemAddressType, []any{avvmRedeemAddressType, keyBytes}, map[any]any{}}
	addrCbor, err := codec.CanonicalMarshal(addrStructure)
	if err != nil {
		return nil, fmt.Errorf("encode redeem address structure: %w", err)
	}
	sha3Sum := sha3.Sum256(addrCbor)
	addrHash := blake2b224(sha3Sum[:])

	address, err := codec.EncodeWrappedAddress(addrHash, map[any]any{}, avvmRedeemAddressType)
	if err != nil {
		return nil, fmt.Errorf("encode redeem address: %w", err)
	}

	addrBytes, err := codec.Base58Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode derived address: %w", err)
	}
	txHash := hex.EncodeToString(blake2bSum256(addrBytes))

	return &store.UtxoRecord{
		Id:       codec.UtxoId(txHash, 0),
		TxHash:   txHash,
		Index:    0,
		Address:  codec.TruncateAddress(address),
		Amount:   amount,
		BlockNum: 0,
	}, nil
}

func blake2bSum256(b []byte) []byte {
	sum := blake2b.Sum256(b)
	return sum[:]
}

// blake2b224 hashes b to a 28-byte (224-bit) digest, the size Byron uses
// for address roots.
func blake2b224(b []byte) []byte {
	h, err := blake2b.New(28, nil)
	if err != nil {
		panic(fmt.Sprintf("genesis: build blake2b-224: %v", err))
	}
	h.Write(b)
	return h.Sum(nil)
}

// decodeBase64URL accepts both padded and unpadded base64url, since genesis
// documents in the wild use either.
func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
