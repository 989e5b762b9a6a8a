package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/payments"
)

var (
	fromAddress string
	toAddress   string
	outFile     string
)

// sendCmd creates a send file
var sendCmd = &cobra.Command{
	Use:   "send <argons>",
	Short: "Create an argon send file",
	Long: `Create an argon send file paying <argons> (e.g. 1.5) from the localchain
owning --from, or the first localchain. --to restricts who may claim it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		milligons, err := argons.Parse(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			meta, err := m.CreateArgonsToSendFile(ctx, payments.SendRequest{
				Milligons:   milligons,
				FromAddress: fromAddress,
				ToAddress:   toAddress,
			})
			if err != nil {
				return err
			}
			return writeArgonFile(cmd, meta)
		})
	},
}

// requestCmd creates a request file
var requestCmd = &cobra.Command{
	Use:   "request <argons>",
	Short: "Create an argon request file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		milligons, err := argons.Parse(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			meta, err := m.CreateArgonsToRequestFile(ctx, payments.RequestRequest{
				Milligons:       milligons,
				SendToMyAddress: toAddress,
			})
			if err != nil {
				return err
			}
			return writeArgonFile(cmd, meta)
		})
	},
}

// acceptCmd fulfills a request file
var acceptCmd = &cobra.Command{
	Use:   "accept <file|->",
	Short: "Pay an argon request file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readArgonFile(cmd, args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			n, err := m.AcceptArgonRequest(ctx, raw, fromAddress)
			if err != nil {
				return err
			}
			return printResult(cmd, n, func(out io.Writer) { printNotarization(out, n) })
		})
	},
}

// importCmd claims a send file
var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Claim an argon send file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readArgonFile(cmd, args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			n, err := m.ImportArgons(ctx, raw)
			if err != nil {
				return err
			}
			return printResult(cmd, n, func(out io.Writer) { printNotarization(out, n) })
		})
	},
}

func init() {
	sendCmd.Flags().StringVar(&fromAddress, "from", "", "Address of the paying localchain")
	sendCmd.Flags().StringVar(&toAddress, "to", "", "Only this address may claim the file")
	requestCmd.Flags().StringVar(&toAddress, "to", "", "Address that receives the argons")
	acceptCmd.Flags().StringVar(&fromAddress, "from", "", "Address of the paying localchain")
	for _, c := range []*cobra.Command{sendCmd, requestCmd} {
		c.Flags().StringVarP(&outFile, "out", "o", "", `Write the file here ("." uses its suggested name)`)
	}
}

func writeArgonFile(cmd *cobra.Command, meta argonfile.Meta) error {
	path := outFile
	if path == "." {
		path = meta.Name
	}
	if path == "" {
		if jsonOutput {
			return printResult(cmd, meta, nil)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), meta.RawJSON)
		return err
	}
	if err := os.WriteFile(path, []byte(meta.RawJSON), 0o600); err != nil {
		return fmt.Errorf("write argon file: %w", err)
	}
	return printResult(cmd, meta, func(out io.Writer) { fmt.Fprintf(out, "wrote %s\n", path) })
}

func printNotarization(out io.Writer, n ledger.Notarization) {
	fmt.Fprintf(out, "notarization %s at tick %d\n", n.ID, n.Tick)
	fmt.Fprintf(out, "  change:  %s\n", argons.Format(n.Delta))
	fmt.Fprintf(out, "  balance: %s\n", argons.Format(n.Balance))
}
