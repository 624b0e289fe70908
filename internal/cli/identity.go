package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tcfw/authchain/internal/config"
	"github.com/tcfw/authchain/internal/identity"
	"github.com/tcfw/authchain/pkg/cryptography"
)

var (
	identityCmd = &cobra.Command{
		Use:   "identity",
		Short: "print the local node identity",
		RunE:  runIdentity,
	}
)

func runIdentity(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	f, err := identity.NewFileStore(cfg.Identity().File).Read()
	if err != nil {
		return err
	}
	if f == nil {
		return errors.Errorf("no identity at %s, start the daemon to create one", cfg.Identity().File)
	}

	key, err := cryptography.ParseP256JWK([]byte(f.Key))
	if err != nil {
		return err
	}

	x, y := key.Public().(*cryptography.P256PublicKey).Tokens()

	fmt.Printf("id:          %s\n", f.ID)
	fmt.Printf("block:       %d\n", f.Index)
	fmt.Printf("fingerprint: %s\n", f.Fingerprint)
	fmt.Printf("x:           %s\n", x)
	fmt.Printf("y:           %s\n", y)

	return nil
}
