package store

import (
	"fmt"
	"math/big"
)

// UtxoRecord is the row shape for the utxos / utxos_backup tables.
type UtxoRecord struct {
	Id       string
	TxHash   string
	Index    uint32
	Address  string
	Amount   *big.Int
	BlockNum int64
}

// AddressAmount is one output of a tx, as returned by GetOutputsForTxHashes.
type AddressAmount struct {
	Address string
	Amount  *big.Int
}

// SaveUtxos upserts a batch of UTXOs by id.
func (s *Store) SaveUtxos(utxos []UtxoRecord) error {
	return s.RunInTx(func(tx *Tx) error {
		return tx.SaveUtxos(utxos)
	})
}

// SaveUtxos is the transaction-scoped form, used by the block-tx commit
// protocol.
func (t *Tx) SaveUtxos(utxos []UtxoRecord) error {
	return saveUtxos(t.tx, utxos)
}

func saveUtxos(x dbtx, utxos []UtxoRecord) error {
	if len(utxos) == 0 {
		return nil
	}
	stmt, err := x.Prepare(`
		INSERT INTO utxos (id, tx_hash, idx, address, amount, block_num)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tx_hash = excluded.tx_hash, idx = excluded.idx, address = excluded.address,
			amount = excluded.amount, block_num = excluded.block_num
	`)
	if err != nil {
		return fmt.Errorf("store: save_utxos: prepare: %w", err)
	}
	defer stmt.Close()

	for _, u := range utxos {
		if _, err := stmt.Exec(u.Id, u.TxHash, u.Index, u.Address, u.Amount.String(), u.BlockNum); err != nil {
			return fmt.Errorf("store: save_utxos: exec %s: %w", u.Id, err)
		}
	}
	return nil
}

// GetUtxosByIds fetches the UTXOs for the given ids. Ids not found in the
// store are simply absent from the result, not an error.
func (s *Store) GetUtxosByIds(ids []string) ([]UtxoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClause(`SELECT id, tx_hash, idx, address, amount, block_num FROM utxos WHERE id IN (%s)`, ids)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get_utxos_by_ids: %w", err)
	}
	defer rows.Close()

	var out []UtxoRecord
	for rows.Next() {
		var u UtxoRecord
		var amount string
		if err := rows.Scan(&u.Id, &u.TxHash, &u.Index, &u.Address, &amount, &u.BlockNum); err != nil {
			return nil, fmt.Errorf("store: get_utxos_by_ids: scan: %w", err)
		}
		amt, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("store: get_utxos_by_ids: invalid amount %q for utxo %s", amount, u.Id)
		}
		u.Amount = amt
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetOutputsForTxHashes returns, for each given tx hash, the (address,
// amount) pairs of its outputs that are still unspent (rows in utxos),
// ordered by output index. Spent outputs are not included, so a position in
// the returned slice is not necessarily the output's index.
func (s *Store) GetOutputsForTxHashes(hashes []string) (map[string][]AddressAmount, error) {
	result := make(map[string][]AddressAmount, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}
	query, args := inClause(`SELECT tx_hash, idx, address, amount FROM utxos WHERE tx_hash IN (%s) ORDER BY tx_hash, idx`, hashes)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get_outputs_for_tx_hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, address, amount string
		var idx uint32
		if err := rows.Scan(&hash, &idx, &address, &amount); err != nil {
			return nil, fmt.Errorf("store: get_outputs_for_tx_hashes: scan: %w", err)
		}
		amt, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("store: get_outputs_for_tx_hashes: invalid amount %q for %s", amount, hash)
		}
		result[hash] = append(result[hash], AddressAmount{Address: address, Amount: amt})
	}
	return result, rows.Err()
}

// RemoveAndBackupUtxos atomically moves the given ids from utxos into
// utxos_backup, stamping deletedBlockNum so a later rollback knows which
// backup rows to restore.
func (s *Store) RemoveAndBackupUtxos(ids []string, deletedBlockNum int64) error {
	return s.RunInTx(func(tx *Tx) error {
		return tx.RemoveAndBackupUtxos(ids, deletedBlockNum)
	})
}

// RemoveAndBackupUtxos is the transaction-scoped form, used by the
// block-tx commit protocol.
func (t *Tx) RemoveAndBackupUtxos(ids []string, deletedBlockNum int64) error {
	return removeAndBackupUtxos(t.tx, ids, deletedBlockNum)
}

func removeAndBackupUtxos(x dbtx, ids []string, deletedBlockNum int64) error {
	if len(ids) == 0 {
		return nil
	}
	insertQuery, args := inClause(`
		INSERT INTO utxos_backup (id, tx_hash, idx, address, amount, block_num, deleted_block_num)
		SELECT id, tx_hash, idx, address, amount, block_num, ? FROM utxos WHERE id IN (%s)
	`, ids)
	args = append([]any{deletedBlockNum}, args...)
	if _, err := x.Exec(insertQuery, args...); err != nil {
		return fmt.Errorf("store: remove_and_backup_utxos: backup: %w", err)
	}

	deleteQuery, delArgs := inClause(`DELETE FROM utxos WHERE id IN (%s)`, ids)
	if _, err := x.Exec(deleteQuery, delArgs...); err != nil {
		return fmt.Errorf("store: remove_and_backup_utxos: delete: %w", err)
	}
	return nil
}

// DeleteInvalidUtxosAndBackup deletes rows from both utxos and utxos_backup
// that were produced by a block above height h — they belong to a chain
// being rolled back and are never valid to restore.
func (s *Store) DeleteInvalidUtxosAndBackup(h int64) error {
	return s.RunInTx(func(tx *Tx) error {
		return tx.DeleteInvalidUtxosAndBackup(h)
	})
}

// DeleteInvalidUtxosAndBackup is the transaction-scoped form, used by
// rollback (via RollbackUtxosBackup).
func (t *Tx) DeleteInvalidUtxosAndBackup(h int64) error {
	return deleteInvalidUtxosAndBackup(t.tx, h)
}

func deleteInvalidUtxosAndBackup(x dbtx, h int64) error {
	if _, err := x.Exec(`DELETE FROM utxos WHERE block_num > ?`, h); err != nil {
		return fmt.Errorf("store: delete_invalid_utxos_and_backup: utxos: %w", err)
	}
	if _, err := x.Exec(`DELETE FROM utxos_backup WHERE block_num > ?`, h); err != nil {
		return fmt.Errorf("store: delete_invalid_utxos_and_backup: utxos_backup: %w", err)
	}
	return nil
}

// RollbackUtxosBackup restores, into utxos, every backed-up row whose
// producing block is still valid (block_num <= h) but whose deletion is
// being undone (h < deleted_block_num), after first discarding rows that
// belong to the rolled-back chain entirely.
func (s *Store) RollbackUtxosBackup(h int64) error {
	return s.RunInTx(func(tx *Tx) error {
		return tx.RollbackUtxosBackup(h)
	})
}

// RollbackUtxosBackup is the transaction-scoped form, used by rollback.
func (t *Tx) RollbackUtxosBackup(h int64) error {
	if err := deleteInvalidUtxosAndBackup(t.tx, h); err != nil {
		return err
	}
	_, err := t.tx.Exec(`
		INSERT INTO utxos (id, tx_hash, idx, address, amount, block_num)
		SELECT id, tx_hash, idx, address, amount, block_num FROM utxos_backup
		WHERE block_num <= ? AND ? < deleted_block_num
	`, h, h)
	if err != nil {
		return fmt.Errorf("store: rollback_utxos_backup: restore: %w", err)
	}
	_, err = t.tx.Exec(`DELETE FROM utxos_backup WHERE block_num <= ? AND ? < deleted_block_num`, h, h)
	if err != nil {
		return fmt.Errorf("store: rollback_utxos_backup: prune: %w", err)
	}
	return nil
}

// inClause builds a query with a placeholder "IN (?, ?, ...)" list
// substituted into query via %s, returning the final query and its args.
func inClause(query string, ids []string) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return fmt.Sprintf(query, placeholders), args
}
