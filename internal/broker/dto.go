package broker

import "github.com/argon-desk/argon_desk/internal/argons"

// AddRequest captures the databroker credential submitted by the user.
type AddRequest struct {
	Host         string `json:"host"`
	UserIdentity string `json:"userIdentity"`
	Name         string `json:"name"`
}

// AccountResponse represents a databroker account with its live balance.
type AccountResponse struct {
	Host             string `json:"host"`
	UserIdentity     string `json:"userIdentity"`
	Name             string `json:"name"`
	Balance          int64  `json:"balance"`
	FormattedBalance string `json:"formattedBalance"`
}

func toResponse(a Account) AccountResponse {
	return AccountResponse{
		Host:             a.Host,
		UserIdentity:     a.UserIdentity,
		Name:             a.Name,
		Balance:          a.Balance,
		FormattedBalance: argons.Format(a.Balance),
	}
}
