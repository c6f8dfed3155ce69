package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "olympus-client",
	Short: "Olympus Market client",
	Long: `olympus-client connects a wallet to the Olympus marketplace contract,
keeps the owned, marketplace and auction views in sync with the chain and
serves them to the local UI.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ~/.config/olympus-client/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ownedCmd)
	rootCmd.AddCommand(marketCmd)
	rootCmd.AddCommand(auctionsCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(versionCmd)
}
