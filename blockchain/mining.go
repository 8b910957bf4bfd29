package blockchain

import (
	"context"
	"errors"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNonceSpaceExhausted is returned when no nonce satisfies the difficulty.
var ErrNonceSpaceExhausted = errors.New("nonce space exhausted")

// ctxCheckInterval is how many hashes a worker computes between
// cancellation checks.
const ctxCheckInterval = 4096

// MineCorrectNonce searches for a nonce that makes b's hash meet difficulty
// and stores the nonce and hash in b. Workers stride through the nonce space
// starting at b.Nonce; the first one to succeed cancels the rest.
func MineCorrectNonce(ctx context.Context, b *Block, difficulty uint8, workers int) error {
	if workers < 1 {
		workers = 1
	}

	if difficulty == 0 {
		b.Hash = ComputeHash(b)
		return nil
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once   sync.Once
		solved bool
		nonce  uint64
		hash   Hash32
	)

	stride := uint64(workers)
	g, gctx := errgroup.WithContext(searchCtx)
	for w := range workers {
		start := b.Nonce + uint64(w)
		g.Go(func() error {
			candidate := *b
			for n, i := start, 0; ; n, i = n+stride, i+1 {
				if i%ctxCheckInterval == 0 && gctx.Err() != nil {
					return nil
				}

				candidate.Nonce = n
				h := ComputeHash(&candidate)
				if BlockHashMeetsDifficulty(h, difficulty) {
					once.Do(func() {
						solved, nonce, hash = true, n, h
					})
					cancel()
					return nil
				}

				if n > math.MaxUint64-stride {
					return nil
				}
			}
		})
	}

	_ = g.Wait()

	if solved {
		b.Nonce, b.Hash = nonce, hash
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrNonceSpaceExhausted
}
