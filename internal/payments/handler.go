package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/mainchain"
	"github.com/argon-desk/argon_desk/internal/queue"
)

// Argons is the argon movement surface exposed over HTTP.
type Argons interface {
	CreateArgonsToSendFile(ctx context.Context, req SendRequest) (argonfile.Meta, error)
	CreateArgonsToRequestFile(ctx context.Context, req RequestRequest) (argonfile.Meta, error)
	AcceptArgonRequest(ctx context.Context, raw []byte, fulfillFrom string) (ledger.Notarization, error)
	ImportArgons(ctx context.Context, raw []byte) (ledger.Notarization, error)
	TransferLocalToMainchain(ctx context.Context, address string, milligons int64) (ledger.Notarization, error)
	TransferMainchainToLocal(ctx context.Context, address string, milligons int64) (string, error)
}

// Handler exposes argon file and transfer endpoints.
type Handler struct {
	argons Argons
}

// NewHandler constructs a payment handler.
func NewHandler(a Argons) *Handler {
	return &Handler{argons: a}
}

// SendFile creates a send file.
func (h *Handler) SendFile(c *fiber.Ctx) error {
	var req sendFileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	milligons, err := req.resolve()
	if err != nil {
		return mapError(err)
	}
	meta, err := h.argons.CreateArgonsToSendFile(c.UserContext(), SendRequest{
		Milligons:   milligons,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(meta)
}

// RequestFile creates a request file.
func (h *Handler) RequestFile(c *fiber.Ctx) error {
	var req requestFileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	milligons, err := req.resolve()
	if err != nil {
		return mapError(err)
	}
	meta, err := h.argons.CreateArgonsToRequestFile(c.UserContext(), RequestRequest{
		Milligons:       milligons,
		SendToMyAddress: req.SendToMyAddress,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(meta)
}

// Accept funds a request file.
func (h *Handler) Accept(c *fiber.Ctx) error {
	var req acceptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	n, err := h.argons.AcceptArgonRequest(c.UserContext(), req.File, req.FulfillFromAddress)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toNotarizationResponse(n))
}

// Import claims a send file.
func (h *Handler) Import(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	n, err := h.argons.ImportArgons(c.UserContext(), req.File)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toNotarizationResponse(n))
}

// ToMainchain moves argons from a localchain to the mainchain.
func (h *Handler) ToMainchain(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	milligons, err := req.resolve()
	if err != nil {
		return mapError(err)
	}
	n, err := h.argons.TransferLocalToMainchain(c.UserContext(), req.Address, milligons)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toNotarizationResponse(n))
}

// ToLocalchain requests a mainchain transfer onto a localchain.
func (h *Handler) ToLocalchain(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	milligons, err := req.resolve()
	if err != nil {
		return mapError(err)
	}
	id, err := h.argons.TransferMainchainToLocal(c.UserContext(), req.Address, milligons)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"transferId": id})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, argons.ErrInvalidAmount),
		errors.Is(err, argonfile.ErrInvalidFile),
		errors.Is(err, argonfile.ErrInvalidFileType),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrNothingToClaim):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrLocalchainNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrDuplicateFile):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrNoMainchain),
		errors.Is(err, mainchain.ErrConnection),
		errors.Is(err, queue.ErrShutdown):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
