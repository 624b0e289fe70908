package api

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/ledger"
	"github.com/tcfw/authchain/pkg/storage"
)

var testData = block.Data{strings.Repeat("x", block.TokenSize), strings.Repeat("y", block.TokenSize)}

type testNode struct {
	l *ledger.Ledger
}

func (n *testNode) Ledger() *ledger.Ledger {
	return n.l
}

func startAPI(t *testing.T, l *ledger.Ledger) *Client {
	t.Helper()

	a, err := NewAPI(&testNode{l})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go a.Serve(lis)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, lis.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(1, storage.NewMemStore())
	require.NoError(t, err)

	return l
}

func TestLedgerServiceReads(t *testing.T) {
	ctx := context.Background()
	l := testLedger(t)
	c := startAPI(t, l)

	resp, err := c.LastBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, block.GenesisRecord().String(), resp.Record)
	assert.Equal(t, uint64(0), resp.Length)

	var records []string
	for i := 0; i < 3; i++ {
		_, err := l.Mint(ctx, testData)
		require.NoError(t, err)
		records = append(records, l.LastBlock())
	}

	resp, err = c.LastBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, records[2], resp.Record)
	assert.Equal(t, uint64(3), resp.Length)

	resp, err = c.BlockByIndex(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, records[1], resp.Record)

	resp, err = c.BlockByIndex(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, block.GenesisRecord().String(), resp.Record)

	_, err = c.BlockByIndex(ctx, 10)
	assert.Equal(t, codes.NotFound, status.Code(err))

	hash, _ := block.HashOf([]byte(records[0]))
	resp, err = c.BlockByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, records[0], resp.Record)

	buf := &bytes.Buffer{}
	require.NoError(t, c.Chain(ctx, buf))
	assert.Equal(t, strings.Join(records, ""), buf.String())
}

func TestLedgerServiceReplicate(t *testing.T) {
	ctx := context.Background()
	src := testLedger(t)
	dst := testLedger(t)
	c := startAPI(t, dst)

	_, err := src.Mint(ctx, testData)
	require.NoError(t, err)

	resp, err := c.Replicate(ctx, src.LastBlock())
	require.NoError(t, err)
	assert.Equal(t, src.LastBlock(), resp.Record)
	assert.Equal(t, uint64(1), resp.Length)

	_, err = src.Mint(ctx, testData)
	require.NoError(t, err)

	tampered := []byte(src.LastBlock())
	copy(tampered[block.IndexSize+block.PreviousHashSize:], strings.Repeat("z", block.TokenSize))

	_, err = c.Replicate(ctx, string(tampered))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, uint64(1), dst.Length())
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(toStatus(storage.ErrNotFound)))
	assert.Equal(t, codes.InvalidArgument, status.Code(toStatus(block.ErrHashMismatch)))
	assert.Equal(t, codes.Unimplemented, status.Code(toStatus(storage.ErrOpNotSupported)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(storage.ErrCorruptLedger)))
}

func TestMsgpackCodec(t *testing.T) {
	c := MsgpackCodec{}
	assert.Equal(t, "msgpack", c.Name())

	d, err := c.Marshal(&BlockRequest{Index: 7, Hash: block.GenesisHash})
	require.NoError(t, err)

	req := &BlockRequest{}
	require.NoError(t, c.Unmarshal(d, req))
	assert.Equal(t, uint64(7), req.Index)
	assert.Equal(t, block.GenesisHash, req.Hash)
}
