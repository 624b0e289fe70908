package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/storage"
)

type Ledger struct {
	Path       string
	Level      int
	Breakpiece int
	Index      bool
}

const (
	Cfg_ledger_path       = "ledger.path"
	Cfg_ledger_level      = "ledger.level"
	Cfg_ledger_breakpiece = "ledger.breakpiece"
	Cfg_ledger_index      = "ledger.index"
)

var (
	ledgerDefaults = map[string]interface{}{
		Cfg_ledger_path:       "./files/ledger/",
		Cfg_ledger_level:      2,
		Cfg_ledger_breakpiece: storage.DefaultBreakpiece,
		Cfg_ledger_index:      true,
	}
)

func init() {
	for k, v := range ledgerDefaults {
		viper.SetDefault(k, v)
	}
}

func buildLedgerConfig() (*Ledger, error) {
	c := &Ledger{
		Path:       viper.GetString(Cfg_ledger_path),
		Level:      viper.GetInt(Cfg_ledger_level),
		Breakpiece: viper.GetInt(Cfg_ledger_breakpiece),
		Index:      viper.GetBool(Cfg_ledger_index),
	}

	if c.Path == "" {
		return nil, errors.New("ledger path must be set")
	}

	if c.Level < 0 || c.Level > block.MaxLevel {
		return nil, errors.Errorf("ledger level must be between 0 and %d", block.MaxLevel)
	}

	if c.Breakpiece <= 0 {
		return nil, storage.ErrInvalidBreakpiece
	}

	return c, nil
}
