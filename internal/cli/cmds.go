package cli

func regCommands() {
	//Ledger
	ledgerCmd.AddCommand(ledger_lastCmd)
	ledgerCmd.AddCommand(ledger_getCmd)
	ledgerCmd.AddCommand(ledger_findCmd)
	ledgerCmd.AddCommand(ledger_exportCmd)
	ledgerCmd.AddCommand(ledger_importCmd)
	ledgerCmd.AddCommand(ledger_verifyCmd)

	//Root
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(identityCmd)
}
