package store

import (
	"fmt"
	"time"
)

// BlockRecord is the row shape for the blocks table.
type BlockRecord struct {
	Hash     string
	PrevHash string
	Height   int64
	Epoch    uint64
	Slot     *uint64
	IsEBB    bool
	Time     *time.Time
}

// SaveBlock upserts a single block.
func (s *Store) SaveBlock(b BlockRecord) error {
	return s.SaveBlocks([]BlockRecord{b})
}

// SaveBlocks upserts a batch of blocks by hash, in one transaction.
func (s *Store) SaveBlocks(blocks []BlockRecord) error {
	return s.RunInTx(func(tx *Tx) error {
		return tx.SaveBlocks(blocks)
	})
}

// SaveBlocks is the transaction-scoped form, used by the scheduler's flush
// so a batch of blocks commits atomically with its best-block bump.
func (t *Tx) SaveBlocks(blocks []BlockRecord) error {
	return saveBlocks(t.tx, blocks)
}

func saveBlocks(x dbtx, blocks []BlockRecord) error {
	if len(blocks) == 0 {
		return nil
	}
	stmt, err := x.Prepare(`
		INSERT INTO blocks (hash, prev_hash, height, epoch, slot, is_ebb, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			prev_hash = excluded.prev_hash, height = excluded.height,
			epoch = excluded.epoch, slot = excluded.slot,
			is_ebb = excluded.is_ebb, time = excluded.time
	`)
	if err != nil {
		return fmt.Errorf("store: save_blocks: prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range blocks {
		var unixTime *int64
		if b.Time != nil {
			t := b.Time.Unix()
			unixTime = &t
		}
		if _, err := stmt.Exec(b.Hash, b.PrevHash, b.Height, b.Epoch, b.Slot, b.IsEBB, unixTime); err != nil {
			return fmt.Errorf("store: save_blocks: exec %s: %w", b.Hash, err)
		}
	}
	return nil
}

// RollbackBlocksFromHeight deletes blocks rows with height > h.
func (s *Store) RollbackBlocksFromHeight(h int64) error {
	return rollbackBlocksFromHeight(s.db, h)
}

// RollbackBlocksFromHeight is the transaction-scoped form, used by rollback.
func (t *Tx) RollbackBlocksFromHeight(h int64) error {
	return rollbackBlocksFromHeight(t.tx, h)
}

func rollbackBlocksFromHeight(x dbtx, h int64) error {
	if _, err := x.Exec(`DELETE FROM blocks WHERE height > ?`, h); err != nil {
		return fmt.Errorf("store: rollback_blocks_from_height: %w", err)
	}
	return nil
}
