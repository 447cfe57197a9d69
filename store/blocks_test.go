package store

import "testing"

func TestSaveBlocks_UpsertByHash(t *testing.T) {
	st := openTestStore(t)

	if err := st.SaveBlocks([]BlockRecord{
		{Hash: "h1", PrevHash: "h0", Height: 1, Epoch: 0},
	}); err != nil {
		t.Fatalf("SaveBlocks: %v", err)
	}
	// Re-saving the same hash with a different epoch must update, not
	// duplicate, the row.
	if err := st.SaveBlocks([]BlockRecord{
		{Hash: "h1", PrevHash: "h0", Height: 1, Epoch: 1},
	}); err != nil {
		t.Fatalf("SaveBlocks (upsert): %v", err)
	}

	if err := st.UpdateBest(1); err != nil {
		t.Fatalf("UpdateBest: %v", err)
	}
	best, err := st.BestBlock()
	if err != nil {
		t.Fatalf("BestBlock: %v", err)
	}
	if best.Epoch != 1 {
		t.Errorf("best.Epoch = %d, want 1 (second save should have overwritten the first)", best.Epoch)
	}
}

func TestRollbackBlocksFromHeight(t *testing.T) {
	st := openTestStore(t)

	if err := st.SaveBlocks([]BlockRecord{
		{Hash: "h1", PrevHash: "h0", Height: 1},
		{Hash: "h2", PrevHash: "h1", Height: 2},
		{Hash: "h3", PrevHash: "h2", Height: 3},
	}); err != nil {
		t.Fatalf("SaveBlocks: %v", err)
	}

	if err := st.RollbackBlocksFromHeight(1); err != nil {
		t.Fatalf("RollbackBlocksFromHeight: %v", err)
	}

	if err := st.UpdateBest(3); err != nil {
		t.Fatalf("UpdateBest: %v", err)
	}
	best, err := st.BestBlock()
	if err != nil {
		t.Fatalf("BestBlock: %v", err)
	}
	// height 3 no longer has a blocks row, so update_best should fall back
	// to nil hash/zero epoch/nil slot rather than error.
	if best.Hash != nil {
		t.Errorf("best.Hash = %v, want nil after rollback past the last known block", *best.Hash)
	}
}
