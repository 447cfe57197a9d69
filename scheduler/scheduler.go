// Package scheduler drives the importer's main loop: poll the bridge's tip,
// decide between epoch-batch and block-by-block catch-up, commit each
// block's transactions and UTXO effects atomically, and roll back on a
// detected fork.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/blinklabs-community/byron-importer/bridge"
	"github.com/blinklabs-community/byron-importer/codec"
	"github.com/blinklabs-community/byron-importer/config"
	"github.com/blinklabs-community/byron-importer/metrics"
	"github.com/blinklabs-community/byron-importer/store"
)

// bridgeUnavailableBackoff is how long the main loop sleeps after the
// bridge itself could not be reached, distinct from the regular tip-check
// cadence.
const bridgeUnavailableBackoff = 60 * time.Second

// forkStableSlotCutoff is the slot above which the remote tip's own epoch
// is considered one epoch closer to stable (spec.md §4.5).
const forkStableSlotCutoff = 2160

// Scheduler owns the importer's poll loop and all in-memory state a single
// tip-check tick needs across process_block calls.
type Scheduler struct {
	store            *store.Store
	bridge           *bridge.Client
	cfg              config.Scheduler
	networkStartTime int64

	blocksToStore []blockSummary
	lastBlock     *lastBlockRef
	blocksSeen    int
}

// New builds a Scheduler against st and bc, using cfg's tunables and the
// network's epoch-0 wall-clock start time for block-time derivation.
func New(st *store.Store, bc *bridge.Client, cfg config.Scheduler, networkStartTime int64) *Scheduler {
	return &Scheduler{store: st, bridge: bc, cfg: cfg, networkStartTime: networkStartTime}
}

// Run ticks checkTip on cfg.CheckTipSeconds until ctx is cancelled, backing
// off on a bridge that can't be reached and treating any other checkTip
// error as fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.CheckTipSeconds) * time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		sleep := interval
		if err := s.checkTip(ctx); err != nil {
			var unavailable *bridge.Unavailable
			if errors.As(err, &unavailable) {
				log.Printf("[scheduler] bridge unavailable, backing off: %v", err)
				metrics.BridgeErrors.WithLabelValues("NODE_INACCESSIBLE").Inc()
				sleep = bridgeUnavailableBackoff
			} else {
				return fmt.Errorf("scheduler: check tip: %w", err)
			}
		} else if elapsed := time.Since(start); elapsed < interval {
			sleep = interval - elapsed
		} else {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// checkTip reads the current watermark and the bridge's tip, then either
// pulls whole packed epochs (when far enough behind a stable remote epoch)
// or advances block-by-block, up to cfg.MaxBlocksPerLoop blocks, rolling
// back on the first detected fork.
func (s *Scheduler) checkTip(ctx context.Context) error {
	best, err := s.store.BestBlock()
	if err != nil {
		return fmt.Errorf("best_block: %w", err)
	}

	tip, err := s.bridge.TipStatus(ctx)
	if err != nil {
		return err
	}
	if tip.Tip.Local == nil {
		log.Printf("[scheduler] bridge not yet synced, skipping this tick")
		return nil
	}
	local := *tip.Tip.Local
	remote := tip.Tip.Remote

	if best.Epoch < remote.Epoch {
		lastRemoteStableEpoch := remote.Epoch - 2
		if remote.Slot > forkStableSlotCutoff {
			lastRemoteStableEpoch = remote.Epoch - 1
		}
		bestSlot := uint64(0)
		if best.Slot != nil {
			bestSlot = *best.Slot
		}
		manyStable := best.Epoch < lastRemoteStableEpoch ||
			(best.Epoch == lastRemoteStableEpoch && bestSlot < s.cfg.EpochDownloadThreshold)

		if manyStable {
			if tip.PackedEpochs <= best.Epoch {
				log.Printf("[scheduler] stable epoch %d not yet packed by the bridge", best.Epoch)
				return nil
			}
			for epoch := best.Epoch; epoch < tip.PackedEpochs; epoch++ {
				if err := s.processEpoch(ctx, epoch, best.Height); err != nil {
					return fmt.Errorf("process epoch %d: %w", epoch, err)
				}
			}
			return nil
		}
	}

	height := best.Height + 1
	for i := 0; i < s.cfg.MaxBlocksPerLoop && height <= int64(local.Height); i++ {
		rollbackRequired, err := s.processBlockHeight(ctx, height)
		if err != nil {
			return fmt.Errorf("process block at height %d: %w", height, err)
		}
		if rollbackRequired {
			return s.rollback(height)
		}
		height++
	}
	return nil
}

// processEpoch streams one packed epoch's blocks in order, skipping any at
// or below heightFloor (already committed in a previous, partial pull of
// this same epoch).
func (s *Scheduler) processEpoch(ctx context.Context, epoch uint64, heightFloor int64) error {
	raw, err := s.bridge.EpochPacked(ctx, epoch)
	if err != nil {
		return err
	}
	blobs, err := codec.EpochBlocks(raw, true)
	if err != nil {
		return fmt.Errorf("decode packed epoch: %w", err)
	}

	lastHeight := heightFloor
	for i, blob := range blobs {
		block, err := codec.DecodeBlock(blob, s.networkStartTime)
		if err != nil {
			return fmt.Errorf("decode block %d of epoch %d: %w", i, epoch, err)
		}
		if int64(block.Height) <= heightFloor {
			continue
		}
		rollbackRequired, err := s.processBlock(block, false)
		if err != nil {
			return err
		}
		if rollbackRequired {
			return fmt.Errorf("fork detected while replaying packed epoch %d, which should never happen for a stable epoch", epoch)
		}
		lastHeight = int64(block.Height)
	}
	if err := s.flush(lastHeight); err != nil {
		return err
	}
	metrics.EpochsProcessed.Inc()
	return nil
}

// processBlockHeight fetches and decodes a single block by height and runs
// it through processBlock with an immediate flush.
func (s *Scheduler) processBlockHeight(ctx context.Context, height int64) (rollbackRequired bool, err error) {
	raw, err := s.bridge.BlockByHeight(ctx, uint64(height))
	if err != nil {
		return false, err
	}
	block, err := codec.DecodeBlock(raw, s.networkStartTime)
	if err != nil {
		return false, fmt.Errorf("decode block at height %d: %w", height, err)
	}
	return s.processBlock(block, true)
}

// processBlock runs the fork check, buffers the block, commits its
// transactions (if any) atomically, and flushes the buffer once it is
// large enough, the block carried transactions, or flush is forced.
func (s *Scheduler) processBlock(block *codec.Block, flush bool) (rollbackRequired bool, err error) {
	if s.lastBlock != nil && block.Epoch == s.lastBlock.epoch && block.PrevHash != s.lastBlock.hash {
		return true, nil
	}
	s.lastBlock = &lastBlockRef{epoch: block.Epoch, hash: block.Hash}

	summary := blockSummary{
		hash:     block.Hash,
		prevHash: block.PrevHash,
		height:   int64(block.Height),
		epoch:    block.Epoch,
		slot:     block.Slot,
		isEBB:    block.IsEBB,
	}
	if !block.IsEBB {
		unixTime := block.Time.Unix()
		summary.time = &unixTime
	}
	s.blocksToStore = append(s.blocksToStore, summary)

	if len(block.Txs) > 0 {
		if err := s.commitBlockTxs(block); err != nil {
			s.resetBuffers()
			return false, fmt.Errorf("commit block %s txs: %w", block.Hash, err)
		}
	}

	s.blocksSeen++
	if s.cfg.LogBlockParsedThreshold > 0 && s.blocksSeen%s.cfg.LogBlockParsedThreshold == 0 {
		log.Printf("[scheduler] parsed %d blocks, at height %d", s.blocksSeen, block.Height)
	}

	shouldFlush := flush || len(block.Txs) > 0 || len(s.blocksToStore) >= s.cfg.BlocksCacheSize
	if shouldFlush {
		if err := s.flush(int64(block.Height)); err != nil {
			s.resetBuffers()
			return false, fmt.Errorf("flush at height %d: %w", block.Height, err)
		}
	}

	metrics.BlocksProcessed.Inc()
	return false, nil
}

// commitBlockTxs runs the block-tx commit protocol: resolve every input to
// the UTXO it spends (either produced earlier in this same block or already
// in the store), persist each tx with its resolved addresses, then save the
// block's newly created UTXOs and retire the ones it spent. The inputs are
// looked up in the store before the writes begin; the writes themselves all
// run inside one transaction.
func (s *Scheduler) commitBlockTxs(block *codec.Block) error {
	newUtxos := make(map[string]store.UtxoRecord)
	for _, tx := range block.Txs {
		for idx, out := range tx.Outputs {
			id := codec.UtxoId(tx.Id, uint32(idx))
			newUtxos[id] = store.UtxoRecord{
				Id:       id,
				TxHash:   tx.Id,
				Index:    uint32(idx),
				Address:  out.Address,
				Amount:   out.Amount,
				BlockNum: int64(block.Height),
			}
		}
	}

	intraUtxos := make(map[string]store.UtxoRecord)
	requiredSet := make(map[string]bool)
	var requiredIds []string
	txInputIds := make([][]string, len(block.Txs))

	for i, tx := range block.Txs {
		ids := make([]string, len(tx.Inputs))
		for j, in := range tx.Inputs {
			id := codec.UtxoId(in.TxId, in.Index)
			ids[j] = id
			if u, ok := newUtxos[id]; ok {
				intraUtxos[id] = u
				delete(newUtxos, id)
			} else if !requiredSet[id] {
				requiredSet[id] = true
				requiredIds = append(requiredIds, id)
			}
		}
		txInputIds[i] = ids
	}

	fetched, err := s.store.GetUtxosByIds(requiredIds)
	if err != nil {
		return fmt.Errorf("resolve input utxos: %w", err)
	}
	allUtxos := make(map[string]store.UtxoRecord, len(intraUtxos)+len(fetched))
	for id, u := range intraUtxos {
		allUtxos[id] = u
	}
	for _, u := range fetched {
		allUtxos[u.Id] = u
	}

	now := time.Now()
	blockHeight := int64(block.Height)
	blockHash := block.Hash
	var blockTime *time.Time
	if !block.IsEBB {
		blockTime = &block.Time
	}

	return s.store.RunInTx(func(dbTx *store.Tx) error {
		for i, tx := range block.Txs {
			addresses := make(map[string]bool, len(tx.Inputs)+len(tx.Outputs))
			for _, out := range tx.Outputs {
				addresses[out.Address] = true
			}
			for _, id := range txInputIds[i] {
				u, ok := allUtxos[id]
				if !ok {
					return fmt.Errorf("tx %s: input utxo %s not found", tx.Id, id)
				}
				addresses[u.Address] = true
			}
			addrList := make([]string, 0, len(addresses))
			for a := range addresses {
				addrList = append(addrList, a)
			}
			ordinal := i

			rec := store.TxRecord{
				Hash:      tx.Id,
				BlockNum:  &blockHeight,
				BlockHash: &blockHash,
				TxOrdinal: &ordinal,
				Time:      blockTime,
				State:     store.TxSuccess,
				TxBody:    tx.TxBody,
				Witnesses: tx.Witnesses,
				Addresses: addrList,
			}
			if err := dbTx.SaveTx(rec, now); err != nil {
				return fmt.Errorf("save tx %s: %w", tx.Id, err)
			}
		}

		remaining := make([]store.UtxoRecord, 0, len(newUtxos))
		for _, u := range newUtxos {
			remaining = append(remaining, u)
		}
		if err := dbTx.SaveUtxos(remaining); err != nil {
			return fmt.Errorf("save new utxos: %w", err)
		}
		if err := dbTx.RemoveAndBackupUtxos(requiredIds, blockHeight); err != nil {
			return fmt.Errorf("retire spent utxos: %w", err)
		}
		return nil
	})
}

// flush persists the buffered block summaries and bumps the watermark to
// height, all within one transaction.
func (s *Scheduler) flush(height int64) error {
	if len(s.blocksToStore) == 0 {
		return s.store.UpdateBest(height)
	}
	records := make([]store.BlockRecord, len(s.blocksToStore))
	for i, b := range s.blocksToStore {
		var t *time.Time
		if b.time != nil {
			tv := time.Unix(*b.time, 0)
			t = &tv
		}
		records[i] = store.BlockRecord{
			Hash: b.hash, PrevHash: b.prevHash, Height: b.height,
			Epoch: b.epoch, Slot: b.slot, IsEBB: b.isEBB, Time: t,
		}
	}

	err := s.store.RunInTx(func(dbTx *store.Tx) error {
		if err := dbTx.SaveBlocks(records); err != nil {
			return err
		}
		return dbTx.UpdateBest(height)
	})
	if err != nil {
		return err
	}
	s.blocksToStore = nil
	metrics.BestBlockHeight.Set(float64(height))
	return nil
}

// resetBuffers discards in-memory state after a failed commit, so the next
// tick starts clean instead of retrying a half-applied batch.
func (s *Scheduler) resetBuffers() {
	s.blocksToStore = nil
	s.lastBlock = nil
}

// rollback rewinds the store by cfg.RollbackBlocksCount from its current
// best height, unclamped, and resets in-memory state to match.
func (s *Scheduler) rollback(detectedAtHeight int64) error {
	s.resetBuffers()

	best, err := s.store.BestBlock()
	if err != nil {
		return fmt.Errorf("rollback: best_block: %w", err)
	}
	to := best.Height - s.cfg.RollbackBlocksCount
	now := time.Now()

	err = s.store.RunInTx(func(dbTx *store.Tx) error {
		if err := dbTx.RollbackTxsFromHeight(to, now); err != nil {
			return err
		}
		if err := dbTx.RollbackUtxosBackup(to); err != nil {
			return err
		}
		if err := dbTx.RollbackBlocksFromHeight(to); err != nil {
			return err
		}
		return dbTx.UpdateBest(to)
	})
	if err != nil {
		return fmt.Errorf("rollback to height %d: %w", to, err)
	}

	metrics.Rollbacks.Inc()
	log.Printf("[scheduler] fork detected at height %d, rolled back to %d", detectedAtHeight, to)

	newBest, err := s.store.BestBlock()
	if err != nil {
		return fmt.Errorf("rollback: reload best_block: %w", err)
	}
	if newBest.Hash != nil {
		s.lastBlock = &lastBlockRef{epoch: newBest.Epoch, hash: *newBest.Hash}
	}
	metrics.BestBlockHeight.Set(float64(newBest.Height))
	return nil
}
