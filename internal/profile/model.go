// Package profile persists the user profile: the localchains to load at
// startup and the databroker credentials.
package profile

// BrokerEntry is a persisted databroker credential. Balances are never stored.
type BrokerEntry struct {
	Host         string `json:"host"`
	UserIdentity string `json:"userIdentity"`
	Name         string `json:"name"`
}

// Profile is the durable configuration owned by the profile store.
type Profile struct {
	LocalchainPaths []string      `json:"localchainPaths"`
	Databrokers     []BrokerEntry `json:"databrokers"`
}

func (p Profile) clone() Profile {
	return Profile{
		LocalchainPaths: append([]string(nil), p.LocalchainPaths...),
		Databrokers:     append([]BrokerEntry(nil), p.Databrokers...),
	}
}
