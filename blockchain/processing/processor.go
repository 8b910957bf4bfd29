package processing

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"peerledger/blockchain"
	"peerledger/blockchain/store"
	"peerledger/logger"
	"peerledger/mempool"
	"peerledger/metrics"
)

// LocalOrigin marks units submitted through the API or mined locally.
const LocalOrigin = ""

const (
	sourceLocal = "local"
	sourcePeer  = "peer"

	defaultMaxBlockTransactions = 500
	mineAttempts                = 3
)

// ErrBlockKnown is returned for a block that is already part of the chain.
var ErrBlockKnown = errors.New("block already in chain")

// Broadcaster relays accepted blocks and transactions to peers, skipping
// origin. Implementations must not block.
type Broadcaster interface {
	BroadcastBlock(block *blockchain.Block, origin string)
	BroadcastTransaction(tx *blockchain.Transaction, origin string)
}

// BlockProcessor owns every mutation of the local chain. Appends and
// replacements are serialised by mu; reads go straight to the store.
type BlockProcessor struct {
	store     store.ChainStore
	validator *blockchain.Validator
	pool      *mempool.Pool
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger

	workers     int
	maxBlockTxs int

	mu sync.Mutex

	bmu         sync.RWMutex
	broadcaster Broadcaster
}

type Option func(*BlockProcessor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(bp *BlockProcessor) { bp.metrics = m }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(bp *BlockProcessor) { bp.log = l }
}

// WithMiningWorkers sets how many goroutines search for a nonce.
func WithMiningWorkers(n int) Option {
	return func(bp *BlockProcessor) { bp.workers = n }
}

func WithMaxBlockTransactions(n int) Option {
	return func(bp *BlockProcessor) { bp.maxBlockTxs = n }
}

func NewBlockProcessor(chainStore store.ChainStore, v *blockchain.Validator, pool *mempool.Pool, opts ...Option) *BlockProcessor {
	bp := &BlockProcessor{
		store:       chainStore,
		validator:   v,
		pool:        pool,
		workers:     runtime.NumCPU(),
		maxBlockTxs: defaultMaxBlockTransactions,
	}
	for _, opt := range opts {
		opt(bp)
	}

	if bp.metrics == nil {
		bp.metrics = metrics.New()
	}
	if bp.log == nil {
		bp.log = logger.With("component", "processor")
	}

	bp.metrics.SetChainHeight(bp.GetChain().Len())
	return bp
}

// SetBroadcaster sets the relay used after local acceptance (optional).
func (bp *BlockProcessor) SetBroadcaster(b Broadcaster) {
	bp.bmu.Lock()
	defer bp.bmu.Unlock()
	bp.broadcaster = b
}

func (bp *BlockProcessor) getBroadcaster() Broadcaster {
	bp.bmu.RLock()
	defer bp.bmu.RUnlock()
	return bp.broadcaster
}

// GetChain returns a read-only snapshot of the current chain.
func (bp *BlockProcessor) GetChain() *blockchain.Chain {
	return bp.store.GetChain()
}

func (bp *BlockProcessor) Difficulty() uint8 { return bp.validator.Difficulty }

func (bp *BlockProcessor) PendingTransactions() []blockchain.Transaction {
	return bp.pool.Pending(0)
}

// SubmitTransaction validates a locally submitted transaction and queues it.
func (bp *BlockProcessor) SubmitTransaction(ctx context.Context, tx *blockchain.Transaction) error {
	return bp.AcceptTransaction(ctx, tx, LocalOrigin)
}

// AcceptTransaction validates tx, adds it to the pool and relays it to every
// peer except origin. Duplicates are reported with mempool.ErrDuplicate and
// not relayed again.
func (bp *BlockProcessor) AcceptTransaction(ctx context.Context, tx *blockchain.Transaction, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := bp.validator.ValidateTransaction(tx); err != nil {
		bp.metrics.TransactionRejected(blockchain.Reason(err))
		bp.log.Debugw("transaction rejected", "origin", origin, "error", err)
		return err
	}

	id := tx.ID()
	if bp.GetChain().ContainsTransaction(id) {
		return fmt.Errorf("%w: %s is already recorded in the chain", mempool.ErrDuplicate, id.Short())
	}

	if err := bp.pool.Add(*tx); err != nil {
		if !errors.Is(err, mempool.ErrDuplicate) {
			bp.metrics.TransactionRejected("pool_full")
		}
		return err
	}

	bp.metrics.TransactionAccepted(sourceOf(origin))
	bp.metrics.SetMempoolSize(bp.pool.Len())
	bp.log.Debugw("transaction accepted", "id", id.Short(), "origin", origin)

	if b := bp.getBroadcaster(); b != nil {
		b.BroadcastTransaction(tx, origin)
	}
	return nil
}

// SubmitBlock validates a locally submitted block and appends it.
func (bp *BlockProcessor) SubmitBlock(ctx context.Context, block *blockchain.Block) error {
	return bp.AcceptBlock(ctx, block, LocalOrigin)
}

// AcceptBlock validates block against the current tip, appends it and relays
// it to every peer except origin. A block that does not extend the tip fails
// with blockchain.ErrLinkMismatch; one already in the chain with
// ErrBlockKnown.
func (bp *BlockProcessor) AcceptBlock(ctx context.Context, block *blockchain.Block, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if block == nil {
		return &blockchain.ValidationError{Stage: blockchain.StageReceived, Kind: blockchain.ErrMalformedBlock, Detail: "block is nil"}
	}

	chain, err := bp.appendBlock(block)
	if err != nil {
		if !errors.Is(err, ErrBlockKnown) {
			bp.metrics.BlockRejected(blockchain.Reason(err))
			bp.log.Debugw("block rejected", "index", block.Index, "hash", block.Hash.Short(), "origin", origin, "error", err)
		}
		return err
	}

	bp.pool.Prune(chain)
	bp.metrics.BlockAccepted(sourceOf(origin))
	bp.metrics.SetChainHeight(chain.Len())
	bp.metrics.SetMempoolSize(bp.pool.Len())
	bp.log.Infow("block appended", "index", block.Index, "hash", block.Hash.Short(), "txs", len(block.Transactions), "origin", origin)

	if b := bp.getBroadcaster(); b != nil {
		b.BroadcastBlock(block, origin)
	}
	return nil
}

func (bp *BlockProcessor) appendBlock(block *blockchain.Block) (*blockchain.Chain, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	chain := bp.GetChain()
	if existing, ok := chain.At(block.Index); ok && existing.Hash == block.Hash {
		return nil, ErrBlockKnown
	}

	if err := bp.validator.ValidateBlock(block, chain.Tip()); err != nil {
		return nil, err
	}

	for i := range block.Transactions {
		id := block.Transactions[i].ID()
		if chain.ContainsTransaction(id) {
			return nil, &blockchain.ValidationError{
				Stage:  blockchain.StageStructural,
				Kind:   blockchain.ErrMalformedBlock,
				Detail: fmt.Sprintf("transaction %s is already recorded", id.Short()),
			}
		}
	}

	if err := bp.store.AddBlock(block); err != nil {
		return nil, err
	}

	return bp.GetChain(), nil
}

// ResolveChain applies the longest valid chain rule to a chain received from
// origin. It reports whether the local chain was replaced. Candidates that
// are not strictly longer are ignored without error; invalid ones are
// rejected as a whole and leave the local chain untouched.
func (bp *BlockProcessor) ResolveChain(ctx context.Context, blocks []*blockchain.Block, origin string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	local := bp.GetChain()
	if len(blocks) <= local.Len() {
		return false, nil
	}

	// Full validation runs without the writer lock held.
	candidate, replaced, err := bp.validator.ResolveFork(local, blocks)
	if err != nil {
		bp.metrics.BlockRejected(blockchain.Reason(err))
		bp.log.Infow("candidate chain rejected", "length", len(blocks), "origin", origin, "error", err)
		return false, err
	}
	if !replaced {
		return false, nil
	}

	bp.mu.Lock()
	previous := bp.GetChain()
	if candidate.Len() <= previous.Len() {
		bp.mu.Unlock()
		return false, nil
	}
	if err := bp.store.ReplaceChain(candidate); err != nil {
		bp.mu.Unlock()
		return false, err
	}
	bp.mu.Unlock()

	bp.requeueOrphaned(previous, candidate)
	bp.pool.Prune(candidate)

	bp.metrics.ChainReplaced()
	bp.metrics.SetChainHeight(candidate.Len())
	bp.metrics.SetMempoolSize(bp.pool.Len())
	bp.log.Infow("chain replaced", "old_length", previous.Len(), "new_length", candidate.Len(),
		"tip", candidate.Tip().Hash.Short(), "origin", origin)

	if b := bp.getBroadcaster(); b != nil {
		b.BroadcastBlock(candidate.Tip(), origin)
	}
	return true, nil
}

// requeueOrphaned returns transactions from abandoned local blocks to the
// pool so they can be mined again.
func (bp *BlockProcessor) requeueOrphaned(previous, current *blockchain.Chain) {
	fork := 0
	for fork < previous.Len() && fork < current.Len() {
		a, _ := previous.At(uint64(fork))
		b, _ := current.At(uint64(fork))
		if a.Hash != b.Hash {
			break
		}
		fork++
	}

	for _, block := range previous.Blocks()[fork:] {
		for i := range block.Transactions {
			tx := block.Transactions[i]
			if current.ContainsTransaction(tx.ID()) {
				continue
			}
			_ = bp.pool.Add(tx)
		}
	}
}

// Mine assembles pending transactions on top of the tip, searches for a
// nonce and appends the result. The search is retried if the tip moves
// underneath it.
func (bp *BlockProcessor) Mine(ctx context.Context) (*blockchain.Block, error) {
	var lastErr error
	for range mineAttempts {
		chain := bp.GetChain()
		bp.pool.Prune(chain)

		start := time.Now()
		block, err := blockchain.NewBlock(ctx, blockchain.BlockCreationParams{
			Previous:     chain.Tip(),
			Transactions: bp.pool.Pending(bp.maxBlockTxs),
			Difficulty:   bp.validator.Difficulty,
			Workers:      bp.workers,
		})
		if err != nil {
			return nil, err
		}
		bp.metrics.ObserveMining(time.Since(start))

		err = bp.AcceptBlock(ctx, block, LocalOrigin)
		if err == nil {
			return block, nil
		}
		if !errors.Is(err, blockchain.ErrLinkMismatch) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func sourceOf(origin string) string {
	if origin == LocalOrigin {
		return sourceLocal
	}
	return sourcePeer
}
