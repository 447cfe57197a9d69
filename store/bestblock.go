package store

import (
	"database/sql"
	"fmt"
)

// BestBlock is the importer's watermark: the highest block height it has
// committed, and that block's identity. Height is signed because a rollback
// rewinds by a fixed depth without clamping at zero (spec scenario: an
// empty store can legitimately report a negative best height).
type BestBlock struct {
	Height int64
	Hash   *string
	Epoch  uint64
	Slot   *uint64
}

// BestBlock returns the current watermark. An empty store reports height 0,
// hash nil.
func (s *Store) BestBlock() (*BestBlock, error) {
	row := s.db.QueryRow(`SELECT height, hash, epoch, slot FROM best_block WHERE id = 0`)
	var b BestBlock
	err := row.Scan(&b.Height, &b.Hash, &b.Epoch, &b.Slot)
	if err == sql.ErrNoRows {
		return &BestBlock{Height: 0, Hash: nil, Epoch: 0, Slot: nil}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: best_block: %w", err)
	}
	return &b, nil
}

// UpdateBest sets the watermark to height, filling in hash/epoch/slot from
// the blocks row at that height if one exists (it may not, e.g. after a
// rollback lands on a height below the oldest retained block).
func (s *Store) UpdateBest(height int64) error {
	return updateBest(s.db, height)
}

// UpdateBest is the transaction-scoped form, used by rollback.
func (t *Tx) UpdateBest(height int64) error {
	return updateBest(t.tx, height)
}

func updateBest(x dbtx, height int64) error {
	var hash *string
	var epoch uint64
	var slot *uint64
	row := x.QueryRow(`SELECT hash, epoch, slot FROM blocks WHERE height = ? LIMIT 1`, height)
	err := row.Scan(&hash, &epoch, &slot)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: update_best: lookup block at height %d: %w", height, err)
	}
	_, err = x.Exec(`
		INSERT INTO best_block (id, height, hash, epoch, slot) VALUES (0, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET height = excluded.height, hash = excluded.hash,
			epoch = excluded.epoch, slot = excluded.slot
	`, height, hash, epoch, slot)
	if err != nil {
		return fmt.Errorf("store: update_best: %w", err)
	}
	return nil
}

// IsGenesisLoaded reports whether the genesis loader has already run:
// true iff the store holds any utxos or any blocks.
func (s *Store) IsGenesisLoaded() (bool, error) {
	var count int64
	row := s.db.QueryRow(`SELECT (SELECT COUNT(*) FROM utxos) + (SELECT COUNT(*) FROM blocks)`)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("store: is_genesis_loaded: %w", err)
	}
	return count > 0, nil
}
