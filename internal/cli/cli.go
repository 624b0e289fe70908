package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rootCmd = &cobra.Command{
		Use:           "authchain",
		Short:         "proof of work identity ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func Execute() error {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase verbosity")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	regCommands()

	return rootCmd.ExecuteContext(context.Background())
}
