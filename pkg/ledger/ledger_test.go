package ledger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	shards "github.com/tcfw/authchain/internal/storage"
	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/storage"
	"github.com/tcfw/authchain/pkg/storage/mocks"
)

var (
	dataA = block.Data{strings.Repeat("A", block.TokenSize), strings.Repeat("B", block.TokenSize)}
	dataB = block.Data{strings.Repeat("C", block.TokenSize), strings.Repeat("D", block.TokenSize)}
)

func openShardLedger(t *testing.T, dir string, bp int) (*Ledger, *shards.ShardStore) {
	t.Helper()

	s, err := shards.NewShardStore(context.Background(), dir, storage.Options{
		GenesisHash: block.GenesisHash,
		Breakpiece:  bp,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l, err := Open(1, s)
	require.NoError(t, err)

	return l, s
}

func openMemLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open(1, storage.NewMemStore())
	require.NoError(t, err)

	return l
}

func TestFirstMint(t *testing.T) {
	l, _ := openShardLedger(t, t.TempDir(), 3)

	assert.Equal(t, block.GenesisRecord().String(), l.LastBlock())

	b, err := l.AddBlock(context.Background(), dataA)
	require.NoError(t, err)

	last := l.LastBlock()
	assert.Len(t, last, block.RecordSize)
	assert.Equal(t, "0000000000001", last[:block.IndexSize])
	assert.Equal(t, block.GenesisHash, last[block.IndexSize:block.IndexSize+block.PreviousHashSize])
	assert.Equal(t, b.Hash, last[block.RecordSize-block.HashSize:])
	assert.True(t, strings.HasPrefix(b.Hash, "0"))
}

func TestMintAcrossShards(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, _ := openShardLedger(t, dir, 3)

	var minted []*block.Block
	for i := 0; i < 4; i++ {
		b, err := l.AddBlock(ctx, dataA)
		require.NoError(t, err)
		minted = append(minted, b)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "ledger-*.db"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	raw, err := l.BlockByIndex(ctx, 4)
	require.NoError(t, err)

	rec, err := minted[3].Pack()
	require.NoError(t, err)
	assert.Equal(t, rec.String(), raw)

	fi, err := os.Stat(filepath.Join(dir, "ledger-2.db"))
	require.NoError(t, err)
	assert.Equal(t, int64(block.RecordSize), fi.Size())

	for i := 1; i < len(minted); i++ {
		assert.Equal(t, minted[i-1].Hash, minted[i].PreviousHash)
		assert.False(t, minted[i].Timestamp.Before(minted[i-1].Timestamp))
	}

	require.NoError(t, l.Verify(ctx))
}

func TestBlockByIndexGenesis(t *testing.T) {
	l := openMemLedger(t)

	raw, err := l.BlockByIndex(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, block.GenesisRecord().String(), raw)

	_, err = l.BlockByIndex(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplicate(t *testing.T) {
	ctx := context.Background()
	src := openMemLedger(t)
	dst := openMemLedger(t)

	for i := 0; i < 3; i++ {
		b, err := src.Mint(ctx, dataA)
		require.NoError(t, err)

		rec, err := b.Pack()
		require.NoError(t, err)

		_, err = dst.AddBlock(ctx, rec.String())
		require.NoError(t, err)
	}

	assert.Equal(t, src.LastBlock(), dst.LastBlock())
	assert.Equal(t, uint64(3), dst.Length())
}

func TestReplicateTamperedHash(t *testing.T) {
	ctx := context.Background()
	src := openMemLedger(t)
	dst := openMemLedger(t)

	b, err := src.Mint(ctx, dataA)
	require.NoError(t, err)

	raw := []byte(src.LastBlock())
	last := raw[block.RecordSize-1]
	if last == 'a' {
		raw[block.RecordSize-1] = 'b'
	} else {
		raw[block.RecordSize-1] = 'a'
	}
	require.NotEqual(t, b.Hash, string(raw[block.RecordSize-block.HashSize:]))

	_, err = dst.AddBlock(ctx, raw)
	assert.ErrorIs(t, err, block.ErrInvalidBlock)
	assert.Equal(t, uint64(0), dst.Length())
}

func TestReplicateEarlierTimestamp(t *testing.T) {
	ctx := context.Background()
	l := openMemLedger(t)

	tip, err := l.Mint(ctx, dataA)
	require.NoError(t, err)

	b, err := block.Mine(ctx, tip.Index+1, tip.Hash, dataB, 1, tip.Timestamp.Add(-time.Second))
	require.NoError(t, err)

	rec, err := b.Pack()
	require.NoError(t, err)

	_, err = l.Replicate(ctx, rec.Bytes())
	assert.ErrorIs(t, err, block.ErrTimestampBeforePrevious)
	assert.ErrorIs(t, err, block.ErrInvalidBlock)
	assert.Equal(t, uint64(1), l.Length())
}

func TestReplicateWrongLevel(t *testing.T) {
	ctx := context.Background()
	l := openMemLedger(t)

	b, err := block.Mine(ctx, 1, block.GenesisHash, dataA, 2, time.Now())
	require.NoError(t, err)

	rec, err := b.Pack()
	require.NoError(t, err)

	_, err = l.Replicate(ctx, rec.Bytes())
	assert.ErrorIs(t, err, block.ErrLevelMismatch)
}

func TestAddBlockPayloads(t *testing.T) {
	ctx := context.Background()
	l := openMemLedger(t)

	_, err := l.AddBlock(ctx, [2]string(dataA))
	require.NoError(t, err)

	_, err = l.AddBlock(ctx, []string{dataB[0], dataB[1]})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload interface{}
		err     error
	}{
		{"three tokens", []string{dataA[0], dataA[1], dataA[0]}, ErrInvalidPayload},
		{"short token", block.Data{"short", dataA[1]}, block.ErrInvalidData},
		{"number", 42, ErrInvalidPayload},
		{"nil", nil, ErrInvalidPayload},
		{"short record", "0000000000003", block.ErrInvalidRecordSize},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.AddBlock(ctx, tc.payload)
			assert.ErrorIs(t, err, tc.err)
			assert.ErrorIs(t, err, block.ErrInvalidBlock)
		})
	}

	assert.Equal(t, uint64(2), l.Length())
}

func TestMintTimestampNotBeforeTip(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	store := storage.NewMemStore()

	l, err := Open(1, store, WithClock(func() time.Time { return future }))
	require.NoError(t, err)

	tip, err := l.Mint(ctx, dataA)
	require.NoError(t, err)

	//clock now behind the tip
	l, err = Open(1, store)
	require.NoError(t, err)

	b, err := l.Mint(ctx, dataB)
	require.NoError(t, err)
	assert.True(t, tip.Timestamp.Equal(b.Timestamp))
}

func TestOpenLevelMismatch(t *testing.T) {
	store := storage.NewMemStore()

	l, err := Open(1, store)
	require.NoError(t, err)

	_, err = l.Mint(context.Background(), dataA)
	require.NoError(t, err)

	_, err = Open(2, store)
	assert.ErrorIs(t, err, ErrLevelMismatch)

	_, err = Open(block.MaxLevel+1, storage.NewMemStore())
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestStoreFailureLeavesLedgerUnchanged(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore(t)

	store.On("LastBlock").Return(nil)
	store.On("AddBlock", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	l, err := Open(1, store)
	require.NoError(t, err)

	_, err = l.Mint(ctx, dataA)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, block.GenesisRecord().String(), l.LastBlock())
}

func TestMintCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := openMemLedger(t)

	_, err := l.Mint(ctx, dataA)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), l.Length())
}

func TestConcurrentMints(t *testing.T) {
	ctx := context.Background()
	l := openMemLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Mint(ctx, dataA)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8), l.Length())
	assert.NoError(t, l.Verify(ctx))
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	l := openMemLedger(t)

	var records []string
	for i := 0; i < 3; i++ {
		_, err := l.Mint(ctx, dataA)
		require.NoError(t, err)
		records = append(records, l.LastBlock())
	}

	buf := &bytes.Buffer{}
	require.NoError(t, l.Chain(ctx, buf))
	assert.Equal(t, strings.Join(records, ""), buf.String())

	var got string
	require.NoError(t, l.ChainFunc(ctx, func(chain string) { got = chain }))
	assert.Equal(t, strings.Join(records, ""), got)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()

	src := openMemLedger(t)
	b1, err := src.Mint(ctx, dataA)
	require.NoError(t, err)
	_, err = src.Mint(ctx, dataA)
	require.NoError(t, err)

	r1, err := b1.Pack()
	require.NoError(t, err)
	require.NoError(t, store.AddBlock(ctx, r1.Bytes()))

	raw := []byte(src.LastBlock())
	copy(raw[block.IndexSize+block.PreviousHashSize:], dataB[0])
	require.NoError(t, store.AddBlock(ctx, raw))

	l, err := Open(1, store)
	require.NoError(t, err)

	err = l.Verify(ctx)
	assert.ErrorIs(t, err, block.ErrHashMismatch)
}

func TestBlockByHash(t *testing.T) {
	ctx := context.Background()
	l := openMemLedger(t)

	b, err := l.Mint(ctx, dataA)
	require.NoError(t, err)

	raw, err := l.BlockByHash(ctx, b.Hash)
	require.NoError(t, err)
	assert.Equal(t, l.LastBlock(), raw)

	raw, err = l.BlockByHash(ctx, block.GenesisHash)
	require.NoError(t, err)
	assert.Equal(t, block.GenesisRecord().String(), raw)

	_, err = l.BlockByHash(ctx, strings.Repeat("f", 64))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplaceChainNotSupported(t *testing.T) {
	l := openMemLedger(t)

	assert.ErrorIs(t, l.ReplaceChain(context.Background(), nil), storage.ErrOpNotSupported)
	assert.ErrorIs(t, l.CheckChain(context.Background(), nil), storage.ErrOpNotSupported)
}
