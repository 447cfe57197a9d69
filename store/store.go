// Package store is the importer's materialized view: blocks, transactions,
// the live UTXO set, a backup of spent UTXOs for rollback, tx-address edges,
// and the best-block watermark, all in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQL handle and schema for the importer's materialized view.
type Store struct {
	db *sql.DB
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every table operation
// below can run either autocommit or as part of a caller-owned transaction.
type dbtx interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
}

// Tx is a caller-owned transaction scope for the block-tx commit protocol
// and for rollback, the two operations spec.md requires to be atomic across
// more than one table.
type Tx struct {
	tx *sql.Tx
}

// RunInTx runs fn inside a single transaction, committing if fn returns nil
// and rolling back otherwise.
func (s *Store) RunInTx(fn func(*Tx) error) error {
	sqlTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. journal_mode=WAL and a busy timeout let the scheduler and
// submit-validator goroutines share one handle without serializing on
// every write.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS blocks (
			hash        TEXT PRIMARY KEY,
			prev_hash   TEXT NOT NULL,
			height      INTEGER NOT NULL,
			epoch       INTEGER NOT NULL,
			slot        INTEGER,
			is_ebb      INTEGER NOT NULL,
			time        INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_blocks_height ON blocks(height);

		CREATE TABLE IF NOT EXISTS txs (
			hash         TEXT PRIMARY KEY,
			block_num    INTEGER,
			block_hash   TEXT,
			tx_ordinal   INTEGER,
			time         INTEGER,
			tx_state     TEXT NOT NULL,
			tx_body      TEXT NOT NULL,
			witnesses    TEXT NOT NULL,
			last_update  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_txs_block_num ON txs(block_num);

		CREATE TABLE IF NOT EXISTS tx_addresses (
			hash    TEXT NOT NULL,
			address TEXT NOT NULL,
			PRIMARY KEY (hash, address)
		);
		CREATE INDEX IF NOT EXISTS idx_tx_addresses_address ON tx_addresses(address);

		CREATE TABLE IF NOT EXISTS utxos (
			id         TEXT PRIMARY KEY,
			tx_hash    TEXT NOT NULL,
			idx        INTEGER NOT NULL,
			address    TEXT NOT NULL,
			amount     TEXT NOT NULL,
			block_num  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_utxos_address ON utxos(address);
		CREATE INDEX IF NOT EXISTS idx_utxos_block_num ON utxos(block_num);

		CREATE TABLE IF NOT EXISTS utxos_backup (
			id                TEXT PRIMARY KEY,
			tx_hash           TEXT NOT NULL,
			idx               INTEGER NOT NULL,
			address           TEXT NOT NULL,
			amount            TEXT NOT NULL,
			block_num         INTEGER NOT NULL,
			deleted_block_num INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_utxos_backup_block ON utxos_backup(deleted_block_num);

		CREATE TABLE IF NOT EXISTS best_block (
			id     INTEGER PRIMARY KEY CHECK (id = 0),
			height INTEGER NOT NULL,
			hash   TEXT,
			epoch  INTEGER NOT NULL,
			slot   INTEGER
		);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
