package identity

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/authchain/internal/utils/logging"
	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/cryptography"
)

const (
	defaultMintAttempts = 5
)

var (
	ErrIdentityMismatch = errors.New("identity block not found in ledger")
	ErrNotReady         = errors.New("identity bootstrap has not completed")
)

// Minter is the part of the ledger the identity bootstrap depends on
type Minter interface {
	Mint(ctx context.Context, data block.Data) (*block.Block, error)
	BlockByIndex(ctx context.Context, index uint64) (string, error)
}

// Identity is the node's key pair and the block anchoring its public key
type Identity struct {
	Key         *cryptography.P256PrivateKey
	Fingerprint string

	// ID is the hash of the identity block
	ID    string
	Index uint64
	Block string
}

// Credential is the public view of an identity
type Credential struct {
	ID        string                      `json:"id"`
	Block     uint64                      `json:"block"`
	PublicKey *cryptography.P256PublicKey `json:"publicKey"`
}

func (i *Identity) Credential() Credential {
	return Credential{
		ID:        i.ID,
		Block:     i.Index,
		PublicKey: i.Key.Public().(*cryptography.P256PublicKey),
	}
}

type Option func(*Manager)

func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithFingerprint uses a fixed fingerprint for a new identity instead of a random one
func WithFingerprint(fp string) Option {
	return func(m *Manager) {
		m.fingerprint = fp
	}
}

// WithBackoff bounds retries of the identity mint
// WithBackoff sets the retry schedule for nonce exhaustion. At least one
// mint is always attempted.
func WithBackoff(bo *backoff.Backoff, attempts int) Option {
	return func(m *Manager) {
		if attempts < 1 {
			attempts = 1
		}
		m.backoff = bo
		m.attempts = attempts
	}
}

// Manager creates or restores the node identity. A new identity is anchored
// by minting its public key coordinates into the ledger.
type Manager struct {
	store  *FileStore
	ledger Minter

	fingerprint string
	backoff     *backoff.Backoff
	attempts    int
	logger      *logrus.Entry

	once  sync.Once
	ready chan struct{}

	mu  sync.RWMutex
	id  *Identity
	err error
}

func NewManager(store *FileStore, ledger Minter, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		ledger: ledger,
		backoff: &backoff.Backoff{
			Min: 50 * time.Millisecond,
			Max: 5 * time.Second,
		},
		attempts: defaultMintAttempts,
		logger:   logging.Entry(),
		ready:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start runs the bootstrap in the background. Ready is closed once it completes.
func (m *Manager) Start(ctx context.Context) {
	go m.Bootstrap(ctx)
}

// Ready is closed when the bootstrap has finished, successfully or not
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Err reports why the bootstrap failed
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.err
}

func (m *Manager) Identity() (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.id == nil {
		if m.err != nil {
			return nil, m.err
		}
		return nil, ErrNotReady
	}

	return m.id, nil
}

// Bootstrap loads the stored identity or creates a new one. Only the first
// call does any work; later calls return its result.
func (m *Manager) Bootstrap(ctx context.Context) (*Identity, error) {
	m.once.Do(func() {
		id, err := m.bootstrap(ctx)

		m.mu.Lock()
		m.id, m.err = id, err
		m.mu.Unlock()

		if err != nil {
			m.logger.WithError(err).Error("identity bootstrap failed")
		}

		close(m.ready)
	})

	<-m.ready
	return m.Identity()
}

func (m *Manager) bootstrap(ctx context.Context) (*Identity, error) {
	f, err := m.store.Read()
	if err != nil {
		return nil, err
	}

	if f != nil {
		return m.restore(ctx, f)
	}

	return m.create(ctx)
}

func (m *Manager) restore(ctx context.Context, f *IdentityFile) (*Identity, error) {
	m.logger.Debug("using existing identity")

	key, err := cryptography.ParseP256JWK([]byte(f.Key))
	if err != nil {
		return nil, errors.Wrap(err, "reading identity key")
	}

	raw, err := m.ledger.BlockByIndex(ctx, f.Index)
	if err != nil {
		return nil, errors.Wrapf(ErrIdentityMismatch, "block %d: %s", f.Index, err)
	}

	b, err := block.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decoding identity block")
	}

	x, y := key.Public().(*cryptography.P256PublicKey).Tokens()
	if b.Hash != f.ID || b.Data != (block.Data{x, y}) {
		return nil, errors.Wrapf(ErrIdentityMismatch, "block %d", f.Index)
	}

	id := &Identity{
		Key:         key,
		Fingerprint: f.Fingerprint,
		ID:          b.Hash,
		Index:       b.Index,
		Block:       raw,
	}

	m.logger.WithField("id", id.ID).WithField("index", id.Index).Info("identity restored")

	return id, nil
}

func (m *Manager) create(ctx context.Context) (*Identity, error) {
	m.logger.Debug("creating a new P-256 identity")

	key, err := cryptography.NewP256PrivateKey()
	if err != nil {
		return nil, err
	}

	fp := m.fingerprint
	if fp == "" {
		fp, err = cryptography.NewFingerprint()
		if err != nil {
			return nil, err
		}
	}

	x, y := key.Public().(*cryptography.P256PublicKey).Tokens()

	b, err := m.mint(ctx, block.Data{x, y})
	if err != nil {
		return nil, errors.Wrap(err, "minting identity block")
	}

	rec, err := b.Pack()
	if err != nil {
		return nil, err
	}

	jwk, err := key.MarshalJWK()
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Key:         key,
		Fingerprint: fp,
		ID:          b.Hash,
		Index:       b.Index,
		Block:       rec.String(),
	}

	if err := m.store.Write(&IdentityFile{
		Key:         string(jwk),
		Fingerprint: fp,
		ID:          id.ID,
		Index:       id.Index,
		Block:       id.Block,
	}); err != nil {
		return nil, err
	}

	m.logger.WithField("id", id.ID).WithField("index", id.Index).Info("identity created")

	return id, nil
}

// mint retries when the nonce space runs out; the next attempt gets a
// fresh timestamp and so a fresh search space
func (m *Manager) mint(ctx context.Context, data block.Data) (*block.Block, error) {
	var err error

	for attempt := 0; attempt < m.attempts; attempt++ {
		var b *block.Block

		b, err = m.ledger.Mint(ctx, data)
		if err == nil {
			return b, nil
		}

		if !errors.Is(err, block.ErrNonceExhausted) {
			return nil, err
		}

		d := m.backoff.Duration()
		m.logger.WithField("attempt", attempt+1).WithField("wait", d).Warn("identity mint exhausted nonces, retrying")

		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, err
}
