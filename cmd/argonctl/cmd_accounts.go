package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/manager"
)

var (
	accountSuri   string
	accountScheme string
)

// accountsCmd is the parent command for localchain management
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage localchains",
}

// accountsAddCmd loads or creates a localchain at a path
var accountsAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Load or create the localchain at path",
	Long: `Load the localchain at path, creating it when missing.

A path without a .db suffix is treated as a directory holding primary.db. With
no path the default localchain directory is used. --suri imports a mnemonic
instead of generating a fresh key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			h, err := m.AddAccount(ctx, manager.AccountConfig{
				Path:         path,
				CryptoScheme: ledger.CryptoScheme(accountScheme),
				Suri:         accountSuri,
			})
			if err != nil {
				return err
			}
			overview, err := h.Store.Overview(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, overview, func(out io.Writer) { printOverview(out, h.Path, overview) })
		})
	},
}

// accountsCreateCmd creates a named localchain
var accountsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create <localchain dir>/<name>.db",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			overview, err := m.CreateAccount(ctx, args[0], accountSuri, nil)
			if err != nil {
				return err
			}
			return printResult(cmd, overview, func(out io.Writer) { printOverview(out, overview.Name, overview) })
		})
	},
}

// accountsShowCmd prints the overview of the localchain owning an address
var accountsShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show the localchain owning address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			h, err := m.Localchain(ctx, args[0])
			if err != nil {
				return err
			}
			if h == nil {
				return fmt.Errorf("no localchain found for %s", args[0])
			}
			overview, err := h.Store.Overview(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, overview, func(out io.Writer) { printOverview(out, h.Path, overview) })
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{accountsAddCmd, accountsCreateCmd} {
		c.Flags().StringVar(&accountSuri, "suri", "", "Mnemonic to import instead of generating a key")
	}
	accountsAddCmd.Flags().StringVar(&accountScheme, "crypto-scheme", string(ledger.SchemeEd25519), "Key scheme for --suri")
}

func printOverview(out io.Writer, label string, o ledger.Overview) {
	fmt.Fprintf(out, "%s\n", label)
	fmt.Fprintf(out, "  address:   %s\n", o.Address)
	fmt.Fprintf(out, "  balance:   %s\n", argons.Format(o.Balance))
	fmt.Fprintf(out, "  pending:   %s\n", argons.Format(o.PendingBalance))
	fmt.Fprintf(out, "  mainchain: %s\n", argons.Format(o.MainchainBalance))
}
