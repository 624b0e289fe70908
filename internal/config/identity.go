package config

import (
	"github.com/spf13/viper"
)

type Identity struct {
	File string

	// Fingerprint replaces the random fingerprint of a newly created identity
	Fingerprint string
}

const (
	Cfg_identity_file        = "identity.file"
	Cfg_identity_fingerprint = "identity.fingerprint"
)

var (
	identityDefaults = map[string]interface{}{
		Cfg_identity_file:        "./security/identity.yaml",
		Cfg_identity_fingerprint: "",
	}
)

func init() {
	for k, v := range identityDefaults {
		viper.SetDefault(k, v)
	}
}

func buildIdentityConfig() (*Identity, error) {
	return &Identity{
		File:        viper.GetString(Cfg_identity_file),
		Fingerprint: viper.GetString(Cfg_identity_fingerprint),
	}, nil
}
