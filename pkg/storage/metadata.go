package storage

import (
	"context"

	"github.com/tcfw/authchain/pkg/digest"
)

const (
	// DefaultBreakpiece is the number of records held by one shard
	DefaultBreakpiece = 100000
)

// Options configure a store at bootstrap
type Options struct {
	GenesisHash string
	Breakpiece  int
}

// Validate checks the options can bootstrap a store
func (o Options) Validate() error {
	if !digest.IsValid(o.GenesisHash) {
		return ErrInvalidGenesis
	}
	if o.Breakpiece <= 0 {
		return ErrInvalidBreakpiece
	}

	return nil
}

// Metadata is persisted next to the shards so the tip and length are known
// without scanning every shard on startup. It can always be rebuilt from the
// shards themselves.
type Metadata struct {
	Breakpiece int     `json:"breakpiece"`
	LastBlock  *string `json:"lastBlock"`
	Length     uint64  `json:"length"`
}

// HashIndex maps block hashes to their index. The index is a performance
// measure only; it must be rebuildable from the stored records.
type HashIndex interface {
	Put(ctx context.Context, hash string, index uint64) error
	Lookup(ctx context.Context, hash string) (uint64, error)

	// Indexed is the highest index such that every index up to it has been applied
	Indexed() uint64

	Close() error
}
