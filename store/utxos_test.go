package store

import (
	"math/big"
	"testing"
)

func TestSaveUtxos_AndGetUtxosByIds(t *testing.T) {
	st := openTestStore(t)

	utxos := []UtxoRecord{
		{Id: "tx1_0", TxHash: "tx1", Index: 0, Address: "addr1", Amount: big.NewInt(1000), BlockNum: 1},
		{Id: "tx1_1", TxHash: "tx1", Index: 1, Address: "addr2", Amount: big.NewInt(2000), BlockNum: 1},
	}
	if err := st.SaveUtxos(utxos); err != nil {
		t.Fatalf("SaveUtxos: %v", err)
	}

	got, err := st.GetUtxosByIds([]string{"tx1_0", "tx1_1", "missing"})
	if err != nil {
		t.Fatalf("GetUtxosByIds: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d utxos, want 2 (missing id must be silently absent)", len(got))
	}
	byId := map[string]UtxoRecord{}
	for _, u := range got {
		byId[u.Id] = u
	}
	if byId["tx1_0"].Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("tx1_0 amount = %s, want 1000", byId["tx1_0"].Amount)
	}
}

func TestRemoveAndBackupUtxos_MovesToBackup(t *testing.T) {
	st := openTestStore(t)

	utxo := UtxoRecord{Id: "tx1_0", TxHash: "tx1", Index: 0, Address: "addr1", Amount: big.NewInt(500), BlockNum: 1}
	if err := st.SaveUtxos([]UtxoRecord{utxo}); err != nil {
		t.Fatalf("SaveUtxos: %v", err)
	}

	if err := st.RemoveAndBackupUtxos([]string{utxo.Id}, 2); err != nil {
		t.Fatalf("RemoveAndBackupUtxos: %v", err)
	}

	got, err := st.GetUtxosByIds([]string{utxo.Id})
	if err != nil {
		t.Fatalf("GetUtxosByIds: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("utxo still present in utxos after RemoveAndBackupUtxos")
	}

	// A rollback to height 1 (before the spend at block 2) must restore it.
	if err := st.RollbackUtxosBackup(1); err != nil {
		t.Fatalf("RollbackUtxosBackup: %v", err)
	}
	restored, err := st.GetUtxosByIds([]string{utxo.Id})
	if err != nil {
		t.Fatalf("GetUtxosByIds after restore: %v", err)
	}
	if len(restored) != 1 {
		t.Fatalf("got %d utxos after restoring rollback, want 1", len(restored))
	}
	if restored[0].Amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("restored amount = %s, want 500", restored[0].Amount)
	}
}

func TestRollbackUtxosBackup_DiscardsUtxosFromRolledBackChain(t *testing.T) {
	st := openTestStore(t)

	// A utxo created at block 5, on a chain about to be rolled back past
	// height 3, must not survive the rollback at all (it's not a spend
	// being undone, it never should have existed on the surviving chain).
	utxo := UtxoRecord{Id: "tx9_0", TxHash: "tx9", Index: 0, Address: "addr9", Amount: big.NewInt(1), BlockNum: 5}
	if err := st.SaveUtxos([]UtxoRecord{utxo}); err != nil {
		t.Fatalf("SaveUtxos: %v", err)
	}

	if err := st.RollbackUtxosBackup(3); err != nil {
		t.Fatalf("RollbackUtxosBackup: %v", err)
	}

	got, err := st.GetUtxosByIds([]string{utxo.Id})
	if err != nil {
		t.Fatalf("GetUtxosByIds: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("utxo from rolled-back chain survived rollback: %+v", got)
	}
}

func TestGetOutputsForTxHashes_OrderedByIndex(t *testing.T) {
	st := openTestStore(t)

	if err := st.SaveUtxos([]UtxoRecord{
		{Id: "tx1_1", TxHash: "tx1", Index: 1, Address: "addr-b", Amount: big.NewInt(2), BlockNum: 1},
		{Id: "tx1_0", TxHash: "tx1", Index: 0, Address: "addr-a", Amount: big.NewInt(1), BlockNum: 1},
	}); err != nil {
		t.Fatalf("SaveUtxos: %v", err)
	}

	outs, err := st.GetOutputsForTxHashes([]string{"tx1"})
	if err != nil {
		t.Fatalf("GetOutputsForTxHashes: %v", err)
	}
	got := outs["tx1"]
	if len(got) != 2 {
		t.Fatalf("got %d outputs, want 2", len(got))
	}
	if got[0].Address != "addr-a" || got[1].Address != "addr-b" {
		t.Errorf("outputs not ordered by index: %+v", got)
	}
}
