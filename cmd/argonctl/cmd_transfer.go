package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/manager"
)

var transferAddress string

// transferCmd is the parent command for mainchain transfers
var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move argons between the mainchain and a localchain",
}

// transferToMainchainCmd moves localchain argons to the mainchain
var transferToMainchainCmd = &cobra.Command{
	Use:   "to-mainchain <argons>",
	Short: "Move argons from a localchain to the mainchain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		milligons, err := argons.Parse(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			n, err := m.TransferLocalToMainchain(ctx, transferAddress, milligons)
			if err != nil {
				return err
			}
			return printResult(cmd, n, func(out io.Writer) { printNotarization(out, n) })
		})
	},
}

// transferToLocalchainCmd moves mainchain argons into a localchain
var transferToLocalchainCmd = &cobra.Command{
	Use:   "to-localchain <argons>",
	Short: "Move argons from the mainchain into a localchain",
	Long: `Submit a mainchain transfer into a localchain. The argons are credited by
the next sync cycle; run "argonctl sync" to claim them now.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		milligons, err := argons.Parse(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			id, err := m.TransferMainchainToLocal(ctx, transferAddress, milligons)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"transferId": id}, func(out io.Writer) {
				fmt.Fprintf(out, "submitted mainchain transfer %s\n", id)
			})
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{transferToMainchainCmd, transferToLocalchainCmd} {
		c.Flags().StringVar(&transferAddress, "address", "", "Localchain address (default: first localchain)")
	}
}
