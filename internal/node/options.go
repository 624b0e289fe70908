package node

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/authchain/internal/config"
	"github.com/tcfw/authchain/internal/storage"
	"github.com/tcfw/authchain/internal/utils/logging"
	"github.com/tcfw/authchain/pkg/block"
	storageIface "github.com/tcfw/authchain/pkg/storage"
)

type NodeOption func(*Node) error

func WithStorage(s storageIface.Store) NodeOption {
	return func(n *Node) error {
		n.storage = s
		return nil
	}
}

func WithLogger(l *logrus.Entry) NodeOption {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

func WithConfig(c *config.Config) NodeOption {
	return func(n *Node) error {
		n.cfg = c
		return nil
	}
}

func (n *Node) applyDefaults(ctx context.Context) error {
	if n.logger == nil {
		n.logger = logging.Entry()
	}

	if n.cfg == nil {
		cfg, err := config.GetConfig()
		if err != nil {
			return err
		}
		n.cfg = cfg
	}

	if n.storage == nil {
		s, err := OpenStorage(ctx, n.cfg.Ledger(), n.logger)
		if err != nil {
			return errors.Wrap(err, "initing storage")
		}
		n.storage = s
	}

	return nil
}

// OpenStorage opens the shard store described by cfg, with the hash index
// when enabled. The ledger directory is created if missing.
func OpenStorage(ctx context.Context, cfg *config.Ledger, l *logrus.Entry) (*storage.ShardStore, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, errors.Wrap(err, "creating ledger directory")
	}

	opts := []storage.Option{storage.WithLogger(l.WithField("component", "storage"))}

	var idx *storage.PebbleIndex
	if cfg.Index {
		var err error
		idx, err = storage.NewPebbleIndex(filepath.Join(cfg.Path, storage.IndexDir))
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithHashIndex(idx))
	}

	s, err := storage.NewShardStore(ctx, cfg.Path, storageIface.Options{
		GenesisHash: block.GenesisHash,
		Breakpiece:  cfg.Breakpiece,
	}, opts...)
	if err != nil {
		if idx != nil {
			idx.Close()
		}
		return nil, err
	}

	return s, nil
}
