package store

import (
	"fmt"
	"time"
)

// TxState mirrors the lifecycle a tx moves through: Pending while only
// known from a submit or a not-yet-rolled-forward rollback, Success once a
// block including it is committed.
type TxState string

const (
	TxPending TxState = "Pending"
	TxSuccess TxState = "Success"
)

// TxRecord is the row shape for the txs table, plus the set of addresses
// (from both its inputs and outputs) to index in tx_addresses.
type TxRecord struct {
	Hash       string
	BlockNum   *int64
	BlockHash  *string
	TxOrdinal  *int
	Time       *time.Time
	State      TxState
	TxBody     string
	Witnesses  string
	Addresses  []string
}

// SaveTx upserts a tx by hash, updating the block-assignment columns and
// last_update on conflict, and indexes its addresses in tx_addresses.
func (s *Store) SaveTx(rec TxRecord, now time.Time) error {
	return s.RunInTx(func(tx *Tx) error {
		return tx.SaveTx(rec, now)
	})
}

// SaveTx is the transaction-scoped form, used by the block-tx commit
// protocol to persist every tx in a block alongside its UTXO effects.
func (t *Tx) SaveTx(rec TxRecord, now time.Time) error {
	var unixTime *int64
	if rec.Time != nil {
		v := rec.Time.Unix()
		unixTime = &v
	}
	_, err := t.tx.Exec(`
		INSERT INTO txs (hash, block_num, block_hash, tx_ordinal, time, tx_state, tx_body, witnesses, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			block_num = excluded.block_num, block_hash = excluded.block_hash,
			time = excluded.time, tx_state = excluded.tx_state, tx_ordinal = excluded.tx_ordinal,
			last_update = excluded.last_update
	`, rec.Hash, rec.BlockNum, rec.BlockHash, rec.TxOrdinal, unixTime, string(rec.State), rec.TxBody, rec.Witnesses, now.Unix())
	if err != nil {
		return fmt.Errorf("store: save_tx: %w", err)
	}

	stmt, err := t.tx.Prepare(`INSERT INTO tx_addresses (hash, address) VALUES (?, ?) ON CONFLICT(hash, address) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("store: save_tx: prepare tx_addresses: %w", err)
	}
	defer stmt.Close()
	for _, addr := range rec.Addresses {
		if _, err := stmt.Exec(rec.Hash, addr); err != nil {
			return fmt.Errorf("store: save_tx: tx_addresses %s/%s: %w", rec.Hash, addr, err)
		}
	}
	return nil
}

// RollbackTxsFromHeight reverts every tx committed above height h back to
// Pending, clearing its block assignment.
func (s *Store) RollbackTxsFromHeight(h int64, now time.Time) error {
	return rollbackTxsFromHeight(s.db, h, now)
}

// RollbackTxsFromHeight is the transaction-scoped form, used by rollback.
func (t *Tx) RollbackTxsFromHeight(h int64, now time.Time) error {
	return rollbackTxsFromHeight(t.tx, h, now)
}

func rollbackTxsFromHeight(x dbtx, h int64, now time.Time) error {
	_, err := x.Exec(`
		UPDATE txs SET tx_state = ?, block_num = NULL, block_hash = NULL, time = NULL, last_update = ?
		WHERE block_num > ?
	`, string(TxPending), now.Unix(), h)
	if err != nil {
		return fmt.Errorf("store: rollback_txs_from_height: %w", err)
	}
	return nil
}
