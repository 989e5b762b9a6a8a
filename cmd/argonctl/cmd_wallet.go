package main

import (
	"context"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/infra"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/notification"
	"github.com/argon-desk/argon_desk/internal/wallet"
)

var (
	showQR bool
	qrFile string
)

// walletCmd prints the aggregated wallet
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show localchain, mainchain and databroker balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			w, err := m.Wallet(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, w, func(out io.Writer) { printWallet(out, w) })
		})
	},
}

// addressCmd prints the address of every localchain
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print localchain addresses",
	Long: `Print the address of every loaded localchain in profile order.

With --qr the first address is also rendered as a terminal QR code; --qr-file
writes it as a PNG instead.`,
	RunE: runAddress,
}

// syncCmd runs one sync cycle
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync every localchain with the mainchain now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			result, err := m.SyncNow(ctx)
			if perr := printResult(cmd, result, func(out io.Writer) { printSync(out, result) }); perr != nil {
				return perr
			}
			return err
		})
	},
}

// watchCmd streams wallet updates
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream wallet updates until interrupted",
	Long: `Stream wallet updates until interrupted.

When REDIS_URL is set the updates published by a running daemon are followed.
Otherwise the wallet is opened locally and its own sync cycles are reported.`,
	RunE: runWatch,
}

func init() {
	addressCmd.Flags().BoolVar(&showQR, "qr", false, "Render the first address as a QR code")
	addressCmd.Flags().StringVar(&qrFile, "qr-file", "", "Write the first address QR code to a PNG file")
}

func runAddress(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
		type entry struct {
			Path    string `json:"path"`
			Address string `json:"address"`
		}
		var entries []entry
		for _, h := range m.Localchains() {
			address, err := m.Address(ctx, h)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", h.Path, err)
			}
			entries = append(entries, entry{Path: h.Path, Address: address})
		}
		if len(entries) == 0 {
			return fmt.Errorf("no localchains loaded")
		}
		if qrFile != "" {
			if err := qrcode.WriteFile(entries[0].Address, qrcode.Medium, 256, qrFile); err != nil {
				return fmt.Errorf("write QR code: %w", err)
			}
		}
		return printResult(cmd, entries, func(out io.Writer) {
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\n", e.Address, e.Path)
			}
			if showQR {
				qr, err := qrcode.New(entries[0].Address, qrcode.Medium)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "QR code: %v\n", err)
					return
				}
				fmt.Fprint(out, qr.ToSmallString(false))
			}
		})
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	show := func(u notification.Update) {
		_ = printResult(cmd, u, func(out io.Writer) { printWallet(out, u.Wallet) })
	}
	ctx := cmd.Context()

	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "following %s\n", cfg.UpdatesChannel)
		err = notification.Listen(ctx, client, cfg.UpdatesChannel, show)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
		unsubscribe := m.Subscribe(show)
		defer unsubscribe()
		w, err := m.Wallet(ctx)
		if err != nil {
			return err
		}
		show(notification.Update{Wallet: w})
		<-ctx.Done()
		return nil
	})
}

func printWallet(out io.Writer, w wallet.Wallet) {
	fmt.Fprintf(out, "Total: %s\n", w.FormattedBalance)
	for _, a := range w.Accounts {
		fmt.Fprintf(out, "  %-12s %s  local %s  mainchain %s\n",
			a.Name, shorten(a.Address), argons.Format(a.Balance), argons.Format(a.MainchainBalance))
	}
	for _, b := range w.BrokerAccounts {
		fmt.Fprintf(out, "  broker %-5s %s  %s\n", b.Name, b.Host, argons.Format(b.Balance))
	}
}

func printSync(out io.Writer, r ledger.SyncResult) {
	fmt.Fprintf(out, "mainchain transfers: %d\n", len(r.MainchainTransfers))
	fmt.Fprintf(out, "balance changes:     %d\n", len(r.BalanceChanges))
	fmt.Fprintf(out, "escrow notarizations: %d\n", len(r.EscrowNotarizations))
	fmt.Fprintf(out, "jump consolidations: %d\n", len(r.JumpAccountConsolidations))
}
