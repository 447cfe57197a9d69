package store

import (
	"testing"
	"time"
)

func TestSaveTx_IndexesAddresses(t *testing.T) {
	st := openTestStore(t)

	blockNum := int64(1)
	blockHash := "h1"
	ordinal := 0
	rec := TxRecord{
		Hash:      "tx1",
		BlockNum:  &blockNum,
		BlockHash: &blockHash,
		TxOrdinal: &ordinal,
		State:     TxSuccess,
		TxBody:    "deadbeef",
		Addresses: []string{"addr1", "addr2", "addr1"}, // duplicate must not error
	}
	if err := st.SaveTx(rec, time.Unix(1000, 0)); err != nil {
		t.Fatalf("SaveTx: %v", err)
	}

	outs, err := st.GetOutputsForTxHashes([]string{"tx1"})
	if err != nil {
		t.Fatalf("GetOutputsForTxHashes: %v", err)
	}
	// SaveTx doesn't create utxo rows itself, so this should be empty; the
	// call just exercises that a repeated address didn't break the upsert.
	if len(outs["tx1"]) != 0 {
		t.Errorf("unexpected outputs for tx1: %+v", outs["tx1"])
	}
}

func TestSaveTx_UpsertByHash(t *testing.T) {
	st := openTestStore(t)

	rec := TxRecord{Hash: "tx1", State: TxPending, TxBody: "aa"}
	if err := st.SaveTx(rec, time.Unix(1, 0)); err != nil {
		t.Fatalf("SaveTx (pending): %v", err)
	}

	blockNum := int64(5)
	blockHash := "h5"
	rec2 := TxRecord{Hash: "tx1", BlockNum: &blockNum, BlockHash: &blockHash, State: TxSuccess, TxBody: "aa"}
	if err := st.SaveTx(rec2, time.Unix(2, 0)); err != nil {
		t.Fatalf("SaveTx (success): %v", err)
	}

	if err := st.RollbackTxsFromHeight(4, time.Unix(3, 0)); err != nil {
		t.Fatalf("RollbackTxsFromHeight: %v", err)
	}
	// No direct read accessor for a single tx row exists on Store; this
	// exercises that rolling back a tx committed above height 4 does not
	// error, matching the update_best-style defensive pattern.
}
