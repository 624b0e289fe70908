package node

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/authchain/internal/config"
	"github.com/tcfw/authchain/internal/identity"
	"github.com/tcfw/authchain/pkg/ledger"
	"github.com/tcfw/authchain/pkg/storage"
)

type Node struct {
	cfg      *config.Config
	storage  storage.Store
	ledger   *ledger.Ledger
	identity *identity.Manager

	stopOnce sync.Once
	done     chan struct{}

	logger *logrus.Entry
}

func (n *Node) Storage() storage.Store {
	return n.storage
}

func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func (n *Node) Identity() *identity.Manager {
	return n.identity
}

// NewNode opens the ledger and starts the identity bootstrap in the background
func NewNode(ctx context.Context, opts ...NodeOption) (*Node, error) {
	n := &Node{
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	if err := n.applyDefaults(ctx); err != nil {
		return nil, err
	}

	var err error
	n.ledger, err = ledger.Open(n.cfg.Ledger().Level, n.storage, ledger.WithLogger(n.logger.WithField("component", "ledger")))
	if err != nil {
		n.storage.Close()
		return nil, errors.Wrap(err, "opening ledger")
	}

	idOpts := []identity.Option{identity.WithLogger(n.logger.WithField("component", "identity"))}
	if fp := n.cfg.Identity().Fingerprint; fp != "" {
		idOpts = append(idOpts, identity.WithFingerprint(fp))
	}

	n.identity = identity.NewManager(identity.NewFileStore(n.cfg.Identity().File), n.ledger, idOpts...)
	n.identity.Start(ctx)

	return n, nil
}

// ListenAndServe blocks until Stop is called. It fails if the identity
// bootstrap fails.
func (n *Node) ListenAndServe() error {
	select {
	case <-n.identity.Ready():
	case <-n.done:
		return nil
	}

	if err := n.identity.Err(); err != nil {
		return errors.Wrap(err, "bootstrapping identity")
	}

	id, _ := n.identity.Identity()

	n.logger.
		WithField("id", id.ID).
		WithField("index", id.Index).
		WithField("length", n.ledger.Length()).
		Info("Node ready")

	<-n.done
	return nil
}

func (n *Node) Stop() error {
	var err error

	n.stopOnce.Do(func() {
		n.logger.Warn("Shutting down")
		close(n.done)
		err = n.storage.Close()
	})

	return err
}
