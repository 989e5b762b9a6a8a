// Command argonctl manages the local argon wallet from a terminal. It opens
// the wallet files directly, so it must not run while the daemon holds them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dataDir      string
	mainchainURL string
	passwordFlag string
	logLevel     string
	jsonOutput   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "argonctl",
	Short: "Manage localchains, argon files and databroker accounts",
	Long: `argonctl operates on the wallet stored under the data directory.

Every command loads the localchains listed in the user profile, creating a
primary localchain on first use. Set MAINCHAIN_URL or --mainchain to attach
the mainchain for transfers and sync.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Wallet data directory (default: $DATA_DIR or ~/.argon-desk)")
	rootCmd.PersistentFlags().StringVar(&mainchainURL, "mainchain", "", "Mainchain RPC URL (or set MAINCHAIN_URL)")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", `Localchain password; "-" prompts without echo`)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsCreateCmd)
	accountsCmd.AddCommand(accountsShowCmd)

	transferCmd.AddCommand(transferToMainchainCmd)
	transferCmd.AddCommand(transferToLocalchainCmd)

	brokersCmd.AddCommand(brokersAddCmd)
	brokersCmd.AddCommand(brokersListCmd)

	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(brokersCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
