package identity

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/ledger"
	"github.com/tcfw/authchain/pkg/storage"
)

type mockMinter struct {
	mock.Mock
}

func (m *mockMinter) Mint(ctx context.Context, data block.Data) (*block.Block, error) {
	ret := m.Called(ctx, data)

	b, _ := ret.Get(0).(*block.Block)
	return b, ret.Error(1)
}

func (m *mockMinter) BlockByIndex(ctx context.Context, index uint64) (string, error) {
	ret := m.Called(ctx, index)
	return ret.String(0), ret.Error(1)
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(1, storage.NewMemStore())
	require.NoError(t, err)

	return l
}

func fastBackoff() Option {
	return WithBackoff(&backoff.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond}, 3)
}

func TestCreateIdentity(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "security", "identity.yaml")
	l := testLedger(t)

	m := NewManager(NewFileStore(path), l)
	m.Start(ctx)

	select {
	case <-m.Ready():
	case <-time.After(30 * time.Second):
		t.Fatal("identity bootstrap did not complete")
	}

	require.NoError(t, m.Err())

	id, err := m.Identity()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), id.Index)
	assert.Equal(t, l.LastBlock(), id.Block)

	tip, err := l.Tip()
	require.NoError(t, err)
	assert.Equal(t, tip.Hash, id.ID)

	x, y := id.Credential().PublicKey.Tokens()
	assert.Equal(t, block.Data{x, y}, tip.Data)

	f, err := NewFileStore(path).Read()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, id.ID, f.ID)
	assert.Equal(t, id.Index, f.Index)
	assert.Equal(t, id.Fingerprint, f.Fingerprint)
	assert.Equal(t, byte('z'), f.Fingerprint[0])

	cred, err := json.Marshal(id.Credential())
	require.NoError(t, err)
	assert.Contains(t, string(cred), `"x":"`+x+`"`)
}

func TestRestoreIdentity(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")
	l := testLedger(t)

	first, err := NewManager(NewFileStore(path), l, WithFingerprint("zfixed")).Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, "zfixed", first.Fingerprint)

	second, err := NewManager(NewFileStore(path), l).Bootstrap(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.Key.Equal(second.Key.PrivateKey))
	assert.Equal(t, "zfixed", second.Fingerprint)
	assert.Equal(t, uint64(1), l.Length())
}

func TestRestoreIdentityMissingBlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")

	_, err := NewManager(NewFileStore(path), testLedger(t)).Bootstrap(ctx)
	require.NoError(t, err)

	//a fresh ledger does not carry the identity block
	m := NewManager(NewFileStore(path), testLedger(t))
	_, err = m.Bootstrap(ctx)
	assert.ErrorIs(t, err, ErrIdentityMismatch)

	<-m.Ready()
	assert.ErrorIs(t, m.Err(), ErrIdentityMismatch)
}

func TestRestoreIdentityWrongBlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")
	l := testLedger(t)

	_, err := NewManager(NewFileStore(path), l).Bootstrap(ctx)
	require.NoError(t, err)

	other := filepath.Join(t.TempDir(), "identity.yaml")
	_, err = NewManager(NewFileStore(other), l).Bootstrap(ctx)
	require.NoError(t, err)

	fs := NewFileStore(path)
	f, err := fs.Read()
	require.NoError(t, err)

	f.Index = 2
	require.NoError(t, fs.Write(f))

	_, err = NewManager(fs, l).Bootstrap(ctx)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestMintRetriesNonceExhaustion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")

	b, err := block.Mine(ctx, 1, block.GenesisHash, block.Data{
		"0000000000000000000000000000000000000000000",
		"0000000000000000000000000000000000000000000",
	}, 0, time.Now())
	require.NoError(t, err)

	minter := &mockMinter{}
	minter.On("Mint", mock.Anything, mock.Anything).Return(nil, errors.Wrap(block.ErrNonceExhausted, "block 1")).Once()
	minter.On("Mint", mock.Anything, mock.Anything).Return(b, nil).Once()

	id, err := NewManager(NewFileStore(path), minter, fastBackoff()).Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, id.ID)

	minter.AssertExpectations(t)
}

func TestMintGivesUp(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")

	minter := &mockMinter{}
	minter.On("Mint", mock.Anything, mock.Anything).Return(nil, block.ErrNonceExhausted)

	_, err := NewManager(NewFileStore(path), minter, fastBackoff()).Bootstrap(ctx)
	assert.ErrorIs(t, err, block.ErrNonceExhausted)
	minter.AssertNumberOfCalls(t, "Mint", 3)

	f, err := NewFileStore(path).Read()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestMintWithoutRetries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")

	minter := &mockMinter{}
	minter.On("Mint", mock.Anything, mock.Anything).Return(nil, block.ErrNonceExhausted)

	bo := WithBackoff(&backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond}, 0)

	_, err := NewManager(NewFileStore(path), minter, bo).Bootstrap(ctx)
	assert.ErrorIs(t, err, block.ErrNonceExhausted)
	minter.AssertNumberOfCalls(t, "Mint", 1)
}

func TestMintOtherErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identity.yaml")

	minter := &mockMinter{}
	minter.On("Mint", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	_, err := NewManager(NewFileStore(path), minter, fastBackoff()).Bootstrap(ctx)
	assert.Error(t, err)
	minter.AssertNumberOfCalls(t, "Mint", 1)
}

func TestIdentityNotReady(t *testing.T) {
	m := NewManager(NewFileStore(filepath.Join(t.TempDir(), "identity.yaml")), testLedger(t))

	_, err := m.Identity()
	assert.ErrorIs(t, err, ErrNotReady)
}
