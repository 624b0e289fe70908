package storage

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/tcfw/authchain/pkg/storage"
)

var (
	_ storage.HashIndex = (*PebbleIndex)(nil)
)

const (
	cacheSize = 1 << 20 * 16
)

type indexKeyType byte

const (
	hashTPrefix indexKeyType = iota + 1
	indexedTPrefix
)

// PebbleIndex maps block hashes to indexes. A bloom filter in front of the
// store answers most misses without touching disk.
type PebbleIndex struct {
	db *pebble.DB

	mu      sync.RWMutex
	filter  *bloom.BloomFilter
	indexed uint64
}

// NewPebbleIndex opens or creates the index held in dir
func NewPebbleIndex(dir string) (*PebbleIndex, error) {
	c := pebble.NewCache(cacheSize)
	tc := pebble.NewTableCache(c, 16, 100)
	defer tc.Unref()
	defer c.Unref()

	db, err := pebble.Open(dir, &pebble.Options{Cache: c, TableCache: tc})
	if err != nil {
		return nil, errors.Wrap(err, "opening hash index")
	}

	idx := &PebbleIndex{db: db}

	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

func (p *PebbleIndex) load() error {
	d, done, err := p.db.Get(typedKey(indexedTPrefix))
	if err != nil && err != pebble.ErrNotFound {
		return errors.Wrap(err, "reading indexed height")
	}
	if err == nil {
		p.indexed = binary.BigEndian.Uint64(d)
		done.Close()
	}

	p.filter = storage.NewHashBloom(uint(p.indexed))

	iter := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{byte(hashTPrefix)},
		UpperBound: []byte{byte(hashTPrefix) + 1},
	})
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		storage.AddHash(p.filter, hex.EncodeToString(iter.Key()[1:]))
	}

	return nil
}

func (p *PebbleIndex) Put(ctx context.Context, hash string, index uint64) error {
	h, err := hex.DecodeString(hash)
	if err != nil {
		return errors.Wrap(err, "decoding hash")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(typedKey(hashTPrefix, h), encodeIndex(index), nil); err != nil {
		return errors.Wrap(err, "indexing hash")
	}

	//only a contiguous run moves the mark so a failed put is retried on reindex
	indexed := p.indexed
	if index == indexed+1 {
		indexed = index
		if err := batch.Set(typedKey(indexedTPrefix), encodeIndex(indexed), nil); err != nil {
			return errors.Wrap(err, "updating indexed height")
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "committing hash index")
	}

	storage.AddHash(p.filter, hash)
	p.indexed = indexed

	return nil
}

func (p *PebbleIndex) Lookup(ctx context.Context, hash string) (uint64, error) {
	p.mu.RLock()
	maybe := storage.MayContainHash(p.filter, hash)
	p.mu.RUnlock()

	if !maybe {
		return 0, storage.ErrNotFound
	}

	h, err := hex.DecodeString(hash)
	if err != nil {
		return 0, storage.ErrNotFound
	}

	d, done, err := p.db.Get(typedKey(hashTPrefix, h))
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, storage.ErrNotFound
		}
		return 0, errors.Wrap(err, "reading hash index")
	}
	defer done.Close()

	return binary.BigEndian.Uint64(d), nil
}

func (p *PebbleIndex) Indexed() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.indexed
}

func (p *PebbleIndex) Close() error {
	return p.db.Close()
}

func typedKey(kType indexKeyType, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}

	k := make([]byte, 0, n)
	k = append(k, byte(kType))
	for _, p := range parts {
		k = append(k, p...)
	}

	return k
}

func encodeIndex(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}
