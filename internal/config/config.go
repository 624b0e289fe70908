package config

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/tcfw/authchain/internal/utils/logging"
)

const (
	Cfg_verbose     = "verbose"
	Cfg_api_port    = "api_port"
	Cfg_daemon_addr = "daemon_addr"
)

var (
	defaults = map[string]interface{}{
		Cfg_verbose:     false,
		Cfg_api_port:    8080,
		Cfg_daemon_addr: "127.0.0.1:8080",
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigName("authchain")
	viper.AddConfigPath("/etc/authchain/")
	viper.AddConfigPath("$HOME/.authchain")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("AUTHCHAIN")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			logging.Entry().Debug("no config found")
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	return build()
}

func build() (*Config, error) {
	var err error
	c := &Config{
		apiPort:    viper.GetInt(Cfg_api_port),
		daemonAddr: viper.GetString(Cfg_daemon_addr),
	}

	c.ledger, err = buildLedgerConfig()
	if err != nil {
		return nil, errors.Wrap(err, "ledger config")
	}

	c.identity, err = buildIdentityConfig()
	if err != nil {
		return nil, errors.Wrap(err, "identity config")
	}

	if viper.GetBool(Cfg_verbose) {
		logging.SetLevel(logrus.DebugLevel)
		logging.Entry().WithField("level", "debug").Debug("setting log level")
	}

	return c, nil
}

type Config struct {
	ledger   *Ledger
	identity *Identity

	apiPort    int
	daemonAddr string
}

func (c *Config) Ledger() *Ledger {
	return c.ledger
}

func (c *Config) Identity() *Identity {
	return c.identity
}

func (c *Config) APIPort() int {
	return c.apiPort
}

func (c *Config) DaemonAddr() string {
	return c.daemonAddr
}
