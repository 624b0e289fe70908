package ledger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/authchain/internal/utils/logging"
	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/storage"
)

type Option func(*Ledger)

func WithLogger(l *logrus.Entry) Option {
	return func(lg *Ledger) {
		lg.logger = l
	}
}

// WithClock replaces the time source used to stamp minted blocks
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) {
		lg.now = now
	}
}

// Ledger appends proof of work blocks to a store, minting them locally or
// accepting them from other nodes once validated against the current tip.
type Ledger struct {
	level int
	store storage.Store

	//held across tip read, mining and append
	mu sync.Mutex

	logger *logrus.Entry
	now    func() time.Time
}

// Open binds a ledger to store. An empty store starts from the genesis block;
// otherwise the stored tip must have been mined at level.
func Open(level int, store storage.Store, opts ...Option) (*Ledger, error) {
	if level < 0 || level > block.MaxLevel {
		return nil, errors.Wrapf(ErrInvalidLevel, "%d", level)
	}

	l := &Ledger{
		level:  level,
		store:  store,
		logger: logging.Entry(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if raw := store.LastBlock(); raw != nil {
		tip, err := block.Unpack(raw)
		if err != nil {
			return nil, errors.Wrap(ErrCorruptTip, err.Error())
		}

		if tip.Level != level {
			return nil, errors.Wrapf(ErrLevelMismatch, "tip level %d, configured %d", tip.Level, level)
		}
	}

	return l, nil
}

func (l *Ledger) Level() int {
	return l.level
}

func (l *Ledger) Length() uint64 {
	return l.store.Length()
}

// Tip returns the last stored block or the genesis block when empty
func (l *Ledger) Tip() (*block.Block, error) {
	raw := l.store.LastBlock()
	if raw == nil {
		return block.Genesis(), nil
	}

	b, err := block.Unpack(raw)
	if err != nil {
		return nil, errors.Wrap(ErrCorruptTip, err.Error())
	}

	return b, nil
}

// AddBlock mints a block for a token pair or replicates a serialised block
func (l *Ledger) AddBlock(ctx context.Context, payload interface{}) (*block.Block, error) {
	switch p := payload.(type) {
	case block.Data:
		return l.Mint(ctx, p)
	case [2]string:
		return l.Mint(ctx, block.Data(p))
	case []string:
		if len(p) != 2 {
			return nil, ErrInvalidPayload
		}
		return l.Mint(ctx, block.Data{p[0], p[1]})
	case string:
		return l.Replicate(ctx, []byte(p))
	case []byte:
		return l.Replicate(ctx, p)
	case block.Record:
		return l.Replicate(ctx, p.Bytes())
	default:
		return nil, ErrInvalidPayload
	}
}

// Mint mines a new block carrying data on top of the current tip and stores it
func (l *Ledger) Mint(ctx context.Context, data block.Data) (*block.Block, error) {
	if err := data.Valid(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.Tip()
	if err != nil {
		return nil, err
	}

	ts := l.now()
	if ts.Before(prev.Timestamp) {
		ts = prev.Timestamp
	}

	start := time.Now()

	b, err := block.Mine(ctx, prev.Index+1, prev.Hash, data, l.level, ts)
	if err != nil {
		return nil, errors.Wrap(err, "mining block")
	}

	if err := l.append(ctx, b); err != nil {
		return nil, err
	}

	l.logger.
		WithField("index", b.Index).
		WithField("hash", b.Hash).
		WithField("nonce", b.Nonce).
		WithField("took", time.Since(start)).
		Info("minted block")

	return b, nil
}

// Replicate validates a block produced elsewhere against the current tip and
// stores it. Rejected blocks leave the ledger unchanged.
func (l *Ledger) Replicate(ctx context.Context, raw []byte) (*block.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.Tip()
	if err != nil {
		return nil, err
	}

	b, err := block.Validate(raw, prev, l.level)
	if err != nil {
		l.logger.WithError(err).WithField("tip", prev.Index).Debug("rejected block")
		return nil, err
	}

	if err := l.append(ctx, b); err != nil {
		return nil, err
	}

	l.logger.WithField("index", b.Index).WithField("hash", b.Hash).Info("replicated block")

	return b, nil
}

func (l *Ledger) append(ctx context.Context, b *block.Block) error {
	rec, err := b.Pack()
	if err != nil {
		return errors.Wrap(err, "packing block")
	}

	if err := l.store.AddBlock(ctx, rec.Bytes()); err != nil {
		return errors.Wrap(err, "storing block")
	}

	return nil
}

// LastBlock returns the serialised tip, or the genesis record when empty
func (l *Ledger) LastBlock() string {
	raw := l.store.LastBlock()
	if raw == nil {
		return block.GenesisRecord().String()
	}

	return string(raw)
}

// BlockByIndex returns the serialised block at index; 0 is the genesis block
func (l *Ledger) BlockByIndex(ctx context.Context, index uint64) (string, error) {
	if index == 0 {
		return block.GenesisRecord().String(), nil
	}

	raw, err := l.store.GetBlock(ctx, index)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// BlockByHash resolves a block hash through the store's hash index
func (l *Ledger) BlockByHash(ctx context.Context, hash string) (string, error) {
	if hash == block.GenesisHash {
		return block.GenesisRecord().String(), nil
	}

	lookup, ok := l.store.(storage.HashLookup)
	if !ok {
		return "", storage.ErrOpNotSupported
	}

	index, err := lookup.LookupHash(ctx, hash)
	if err != nil {
		return "", err
	}

	return l.BlockByIndex(ctx, index)
}

// Chain streams every stored block, excluding genesis, in order to w
func (l *Ledger) Chain(ctx context.Context, w io.Writer) error {
	return l.store.Chain(ctx, w)
}

// ChainFunc collects the whole chain and hands it to fn once complete
func (l *Ledger) ChainFunc(ctx context.Context, fn func(chain string)) error {
	var sb strings.Builder
	sb.Grow(int(l.store.Length()) * block.RecordSize)

	if err := l.store.Chain(ctx, &sb); err != nil {
		return err
	}

	fn(sb.String())
	return nil
}

// Verify re-validates every stored block against its predecessor
func (l *Ledger) Verify(ctx context.Context) error {
	v := &verifier{prev: block.Genesis(), level: l.level}
	length := l.store.Length()

	if err := l.store.Chain(ctx, v); err != nil {
		return err
	}

	if v.buf.Len() != 0 {
		return errors.Wrapf(storage.ErrCorruptLedger, "%d trailing bytes", v.buf.Len())
	}

	if v.prev.Index < length {
		return errors.Wrapf(storage.ErrCorruptLedger, "chain ended at %d of %d", v.prev.Index, length)
	}

	l.logger.WithField("length", v.prev.Index).Debug("verified chain")

	return nil
}

// ReplaceChain is reserved for multi-node chain replacement
func (l *Ledger) ReplaceChain(ctx context.Context, chain []string) error {
	return storage.ErrOpNotSupported
}

// CheckChain is reserved for multi-node chain replacement
func (l *Ledger) CheckChain(ctx context.Context, chain []string) error {
	return storage.ErrOpNotSupported
}

type verifier struct {
	prev  *block.Block
	level int
	buf   bytes.Buffer
}

func (v *verifier) Write(p []byte) (int, error) {
	v.buf.Write(p)

	for v.buf.Len() >= block.RecordSize {
		raw := v.buf.Next(block.RecordSize)

		b, err := block.Validate(raw, v.prev, v.level)
		if err != nil {
			return 0, errors.Wrapf(err, "block %d", v.prev.Index+1)
		}
		v.prev = b
	}

	return len(p), nil
}
