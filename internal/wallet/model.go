package wallet

import (
	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/ledger"
)

// Credit is a datastore credit held by the user. None are issued yet; the
// list is always empty.
type Credit struct {
	ID        string `json:"id"`
	Milligons int64  `json:"milligons"`
}

// Wallet is the aggregated view of every localchain, mainchain and broker
// balance the user holds.
type Wallet struct {
	Accounts         []ledger.Overview `json:"accounts"`
	BrokerAccounts   []broker.Account  `json:"brokerAccounts"`
	Credits          []Credit          `json:"credits"`
	Balance          int64             `json:"balance"`
	FormattedBalance string            `json:"formattedBalance"`
}

// Total sums local and mainchain balances of every account plus every broker balance.
func Total(accounts []ledger.Overview, brokers []broker.Account) int64 {
	var total int64
	for _, a := range accounts {
		total += a.Balance + a.MainchainBalance
	}
	for _, b := range brokers {
		total += b.Balance
	}
	return total
}
