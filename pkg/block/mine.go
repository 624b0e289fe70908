package block

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tcfw/authchain/pkg/digest"
)

const (
	// how many nonces are tried between context checks
	ctxCheckInterval = 1024
)

// Mine searches the nonce space for a hash with level leading hex zeros.
//
// The timestamp is fixed for the whole search; when every nonce has been tried
// ErrNonceExhausted is returned and the caller may retry with a later timestamp.
func Mine(ctx context.Context, index uint64, previousHash string, data Data, level int, ts time.Time) (*Block, error) {
	if index == 0 {
		return nil, errors.Wrap(ErrInvalidField, "index 0 is reserved for genesis")
	}
	if index > MaxIndex {
		return nil, ErrChainFull
	}
	if !digest.IsValid(previousHash) {
		return nil, errors.Wrap(ErrInvalidField, "previous hash")
	}
	if err := data.Valid(); err != nil {
		return nil, err
	}
	if level < 0 || level > MaxLevel {
		return nil, ErrInvalidLevel
	}

	b := &Block{
		Index:        index,
		PreviousHash: previousHash,
		Data:         data,
		Timestamp:    normaliseTime(ts),
		Level:        level,
	}

	prefix := b.hashPrefix()
	buf := make([]byte, len(prefix), len(prefix)+NonceSize)
	copy(buf, prefix)

	for nonce := uint32(0); nonce <= MaxNonce; nonce++ {
		if nonce%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		hash := digest.Sum(append(buf[:len(prefix)], formatNonce(nonce)...))
		if digest.HasLeadingZeros(hash, level) {
			b.Nonce = nonce
			b.Hash = hash
			return b, nil
		}
	}

	return nil, errors.Wrapf(ErrNonceExhausted, "block %d at level %d", index, level)
}
