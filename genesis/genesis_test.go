package genesis

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/blinklabs-community/byron-importer/codec"
	"github.com/blinklabs-community/byron-importer/store"
)

var sampleAddress = codec.Base58Encode([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

func bigOne() *big.Int { return big.NewInt(1) }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "genesis.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestLoad_NonAvvmBalances(t *testing.T) {
	st := openTestStore(t)

	doc := json.RawMessage(`{
		"nonAvvmBalances": {"` + sampleAddress + `": "1000000"},
		"avvmDistr": {}
	}`)
	if err := Load(st, doc); err != nil {
		t.Fatalf("Load: %v", err)
	}

	loaded, err := st.IsGenesisLoaded()
	if err != nil {
		t.Fatalf("IsGenesisLoaded: %v", err)
	}
	if !loaded {
		t.Error("IsGenesisLoaded() = false after Load")
	}
}

func TestLoad_Idempotent(t *testing.T) {
	st := openTestStore(t)
	doc := json.RawMessage(`{"nonAvvmBalances": {"` + sampleAddress + `": "500"}, "avvmDistr": {}}`)

	if err := Load(st, doc); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	// A second call against a different document must be a no-op, since
	// the store already reports genesis as loaded.
	secondDoc := json.RawMessage(`{"nonAvvmBalances": {"` + sampleAddress + `": "999999"}, "avvmDistr": {}}`)
	if err := Load(st, secondDoc); err != nil {
		t.Fatalf("second Load: %v", err)
	}
}

func TestAvvmUtxo_DerivesRedeemAddress(t *testing.T) {
	keyBytes := make([]byte, 32)
	for i := range keyBytes {
		keyBytes[i] = byte(i)
	}
	pubKey := base64.RawURLEncoding.EncodeToString(keyBytes)

	utxo, err := avvmUtxo(pubKey, bigOne())
	if err != nil {
		t.Fatalf("avvmUtxo: %v", err)
	}
	if utxo.Index != 0 {
		t.Errorf("Index = %d, want 0", utxo.Index)
	}
	if len(utxo.TxHash) != 64 {
		t.Errorf("TxHash length = %d, want 64 (blake2b-256 hex)", len(utxo.TxHash))
	}
	if utxo.Address == "" {
		t.Error("Address is empty")
	}
}

func TestAvvmUtxo_Deterministic(t *testing.T) {
	pubKey := base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	a, err := avvmUtxo(pubKey, bigOne())
	if err != nil {
		t.Fatalf("avvmUtxo: %v", err)
	}
	b, err := avvmUtxo(pubKey, bigOne())
	if err != nil {
		t.Fatalf("avvmUtxo: %v", err)
	}
	if a.Address != b.Address || a.TxHash != b.TxHash {
		t.Error("avvmUtxo is not deterministic for the same public key")
	}
}

func TestDecodeBase64URL_AcceptsPaddedAndUnpadded(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	unpadded := base64.RawURLEncoding.EncodeToString(raw)
	padded := base64.URLEncoding.EncodeToString(raw)

	for _, s := range []string{unpadded, padded} {
		got, err := decodeBase64URL(s)
		if err != nil {
			t.Fatalf("decodeBase64URL(%q): %v", s, err)
		}
		if string(got) != string(raw) {
			t.Errorf("decodeBase64URL(%q) = %x, want %x", s, got, raw)
		}
	}
}
