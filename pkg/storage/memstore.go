package storage

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/tcfw/authchain/pkg/block"
)

var (
	_ Store      = (*MemStore)(nil)
	_ HashLookup = (*MemStore)(nil)
)

// MemStore keeps records in memory. It follows the same sequencing rules as the
// on-disk store and is intended for tests and tooling.
type MemStore struct {
	mu sync.RWMutex

	records [][]byte
	hashes  map[string]uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		hashes: make(map[string]uint64),
	}
}

func (m *MemStore) AddBlock(_ context.Context, raw []byte) error {
	index, err := block.IndexOf(raw)
	if err != nil {
		return errors.Wrap(err, "reading record index")
	}

	hash, _ := block.HashOf(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	if index != uint64(len(m.records))+1 {
		return ErrOutOfSequence
	}

	d := make([]byte, len(raw))
	copy(d, raw)

	m.records = append(m.records, d)
	m.hashes[hash] = index

	return nil
}

func (m *MemStore) GetBlock(_ context.Context, index uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index == 0 || index > uint64(len(m.records)) {
		return nil, ErrNotFound
	}

	return copyRecord(m.records[index-1]), nil
}

func (m *MemStore) LastBlock() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return nil
	}

	return copyRecord(m.records[len(m.records)-1])
}

func (m *MemStore) Length() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.records))
}

func (m *MemStore) Chain(ctx context.Context, w io.Writer) error {
	m.mu.RLock()
	records := m.records[:len(m.records):len(m.records)]
	m.mu.RUnlock()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := w.Write(r); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}

	return nil
}

func (m *MemStore) LookupHash(_ context.Context, hash string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index, ok := m.hashes[hash]
	if !ok {
		return 0, ErrNotFound
	}

	return index, nil
}

func (m *MemStore) Close() error {
	return nil
}

func copyRecord(r []byte) []byte {
	d := make([]byte, len(r))
	copy(d, r)
	return d
}
