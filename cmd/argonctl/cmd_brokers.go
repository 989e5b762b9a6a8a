package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/profile"
)

var brokerEntry profile.BrokerEntry

// brokersCmd is the parent command for databroker accounts
var brokersCmd = &cobra.Command{
	Use:   "brokers",
	Short: "Manage databroker accounts",
}

// brokersAddCmd validates and stores a databroker credential
var brokersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a databroker account",
	Long: `Add a databroker account. The broker is contacted for the escrow balance
first; nothing is stored when it cannot be reached. An existing entry with the
same host is replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			account, err := m.AddBrokerAccount(ctx, brokerEntry)
			if err != nil {
				return err
			}
			return printResult(cmd, account, func(out io.Writer) { printBrokers(out, []broker.Account{account}) })
		})
	},
}

// brokersListCmd lists databroker accounts with live balances
var brokersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List databroker accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *manager.Manager) error {
			accounts := m.BrokerAccounts(ctx)
			return printResult(cmd, accounts, func(out io.Writer) { printBrokers(out, accounts) })
		})
	},
}

func init() {
	brokersAddCmd.Flags().StringVar(&brokerEntry.Host, "host", "", "Databroker URL")
	brokersAddCmd.Flags().StringVar(&brokerEntry.UserIdentity, "identity", "", "User identity registered with the broker")
	brokersAddCmd.Flags().StringVar(&brokerEntry.Name, "name", "", "Display name")
	_ = brokersAddCmd.MarkFlagRequired("host")
	_ = brokersAddCmd.MarkFlagRequired("identity")
}

func printBrokers(out io.Writer, accounts []broker.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(out, "no databroker accounts")
		return
	}
	for _, a := range accounts {
		fmt.Fprintf(out, "%-12s %-32s %s\n", a.Name, a.Host, argons.Format(a.Balance))
	}
}
