package scheduler

// blockSummary is the minimal record the scheduler buffers in
// blocksToStore before flushing to the store.
type blockSummary struct {
	hash     string
	prevHash string
	height   int64
	epoch    uint64
	slot     *uint64
	isEBB    bool
	time     *int64 // unix seconds, nil for EBB
}

// lastBlockRef is the {epoch, hash} pair the fork check compares each new
// block's prev-hash against.
type lastBlockRef struct {
	epoch uint64
	hash  string
}
