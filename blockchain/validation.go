package blockchain

import (
	"crypto/subtle"
	"time"

	"peerledger/signing"
)

// DefaultMaxFutureDrift is how far ahead of the local clock a block
// timestamp may be.
const DefaultMaxFutureDrift = 2 * time.Minute

// Validator runs the structural and cryptographic checks for transactions,
// blocks and whole chains. The zero value validates without proof of work.
type Validator struct {
	// Difficulty is the required number of leading zero bits in a block
	// hash. Zero disables the proof of work check.
	Difficulty     uint8
	MaxFutureDrift time.Duration
	Now            func() time.Time
}

func NewValidator(difficulty uint8) *Validator {
	return &Validator{
		Difficulty:     difficulty,
		MaxFutureDrift: DefaultMaxFutureDrift,
		Now:            time.Now,
	}
}

func (v *Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v *Validator) drift() time.Duration {
	if v.MaxFutureDrift <= 0 {
		return DefaultMaxFutureDrift
	}
	return v.MaxFutureDrift
}

// ValidateTransaction verifies tx's signature against its sender.
func (v *Validator) ValidateTransaction(tx *Transaction) error {
	if tx == nil {
		return rejectf(StageStructural, ErrMalformedTransaction, "transaction is nil")
	}
	if err := signing.CheckSignature(tx.Sender[:], tx.SigningBytes(), tx.Signature[:]); err != nil {
		return rejectf(StageCryptographic, ErrSignatureInvalid, "transaction %s: %v", tx.ID().Short(), err)
	}
	return nil
}

// ValidateBlock checks b as the successor of prev, which must already be
// valid. Structural checks run first, then the self hash, proof of work
// and transaction signatures.
func (v *Validator) ValidateBlock(b *Block, prev *Block) error {
	if b == nil {
		return rejectf(StageStructural, ErrMalformedBlock, "block is nil")
	}
	if prev == nil {
		return rejectf(StageStructural, ErrLinkMismatch, "no previous block")
	}

	seen := make(map[Hash32]struct{}, len(b.Transactions))
	for i := range b.Transactions {
		id := b.Transactions[i].ID()
		if _, dup := seen[id]; dup {
			return rejectf(StageStructural, ErrMalformedBlock, "transaction %s appears twice", id.Short())
		}
		seen[id] = struct{}{}
	}

	if b.Index != prev.Index+1 {
		return rejectf(StageStructural, ErrLinkMismatch, "index %d does not follow %d", b.Index, prev.Index)
	}
	if b.PreviousHash != prev.Hash {
		return rejectf(StageStructural, ErrLinkMismatch, "previous hash %s, tip is %s", b.PreviousHash.Short(), prev.Hash.Short())
	}

	if b.Timestamp.Before(prev.Timestamp) {
		return rejectf(StageStructural, ErrMalformedBlock, "timestamp %s precedes previous block", b.Timestamp.Format(time.RFC3339Nano))
	}
	if limit := v.now().Add(v.drift()); b.Timestamp.After(limit) {
		return rejectf(StageStructural, ErrMalformedBlock, "timestamp %s is too far in the future", b.Timestamp.Format(time.RFC3339Nano))
	}

	computed := ComputeHash(b)
	if subtle.ConstantTimeCompare(computed[:], b.Hash[:]) != 1 {
		return &ValidationError{Stage: StageCryptographic, Kind: ErrHashMismatch, Detail: "block " + b.Hash.Short()}
	}

	if v.Difficulty > 0 && !BlockHashMeetsDifficulty(b.Hash, v.Difficulty) {
		return rejectf(StageCryptographic, ErrProofOfWorkInsufficient, "hash %s has %d leading zero bits, need %d",
			b.Hash.Short(), LeadingZeroBits(b.Hash), v.Difficulty)
	}

	for i := range b.Transactions {
		if err := v.ValidateTransaction(&b.Transactions[i]); err != nil {
			return err
		}
	}

	return nil
}

// ValidateChain checks every block in order, stopping at the first failure,
// and returns the blocks as a Chain. The first block must be the genesis
// block and no transaction may be recorded twice.
func (v *Validator) ValidateChain(blocks []*Block) (*Chain, error) {
	if len(blocks) == 0 {
		return nil, rejectf(StageStructural, ErrMalformedBlock, "chain is empty")
	}
	if blocks[0] == nil || !IsGenesis(blocks[0]) {
		return nil, rejectf(StageStructural, ErrLinkMismatch, "first block is not the genesis block")
	}

	recorded := make(map[Hash32]uint64)
	for i := 1; i < len(blocks); i++ {
		if err := v.ValidateBlock(blocks[i], blocks[i-1]); err != nil {
			return nil, err
		}

		for j := range blocks[i].Transactions {
			id := blocks[i].Transactions[j].ID()
			if at, dup := recorded[id]; dup {
				return nil, rejectf(StageStructural, ErrMalformedBlock, "transaction %s in block %d was already recorded in block %d", id.Short(), i, at)
			}
			recorded[id] = uint64(i)
		}
	}

	return &Chain{blocks: append([]*Block(nil), blocks...), txs: newTxIndex(recorded, len(blocks))}, nil
}
