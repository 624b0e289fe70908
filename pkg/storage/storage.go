//go:generate go run github.com/vektra/mockery/v2 --name Store

package storage

import (
	"context"
	"io"
)

// Store persists serialised ledger records.
//
// A Store accepts a single writer; AddBlock calls are serialised by the
// implementation. Reads may run concurrently with each other and with AddBlock.
type Store interface {
	// AddBlock appends a record whose index directly follows the current tip.
	// On error the store is left exactly as it was before the call.
	AddBlock(ctx context.Context, raw []byte) error

	// GetBlock reads the record at index (1-based). ErrNotFound is returned
	// for indexes outside the stored range.
	GetBlock(ctx context.Context, index uint64) ([]byte, error)

	// LastBlock returns the cached tip record or nil when empty
	LastBlock() []byte

	// Length is the number of stored records
	Length() uint64

	// Chain writes every record, in order, to w. It is bounded by the length
	// at the time of the call and can be repeated to re-read from the start.
	Chain(ctx context.Context, w io.Writer) error

	Close() error
}

// HashLookup is implemented by stores able to resolve a block hash to its index
type HashLookup interface {
	LookupHash(ctx context.Context, hash string) (uint64, error)
}
