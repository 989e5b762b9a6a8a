package payments

import (
	"encoding/json"
	"fmt"

	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/ledger"
)

// amount carries either raw milligons or a decimal argon string.
type amount struct {
	Milligons int64  `json:"milligons"`
	Argons    string `json:"argons"`
}

func (a amount) resolve() (int64, error) {
	if a.Argons != "" {
		return argons.Parse(a.Argons)
	}
	if a.Milligons <= 0 {
		return 0, fmt.Errorf("%w: milligons or argons is required", argons.ErrInvalidAmount)
	}
	return a.Milligons, nil
}

type sendFileRequest struct {
	amount
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
}

type requestFileRequest struct {
	amount
	SendToMyAddress string `json:"sendToMyAddress"`
}

type acceptRequest struct {
	File               json.RawMessage `json:"file"`
	FulfillFromAddress string          `json:"fulfillFromAddress"`
}

type importRequest struct {
	File json.RawMessage `json:"file"`
}

type transferRequest struct {
	amount
	Address string `json:"address"`
}

// NotarizationResponse represents a notarized change set.
type NotarizationResponse struct {
	ID        string `json:"id"`
	Tick      int64  `json:"tick"`
	Delta     int64  `json:"delta"`
	Balance   int64  `json:"balance"`
	Signature string `json:"signature"`
}

func toNotarizationResponse(n ledger.Notarization) NotarizationResponse {
	return NotarizationResponse{
		ID:        n.ID,
		Tick:      n.Tick,
		Delta:     n.Delta,
		Balance:   n.Balance,
		Signature: n.Signature,
	}
}
