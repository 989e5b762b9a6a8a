package manager

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/localchain"
)

// Handler exposes localchain account endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler constructs an accounts handler.
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

type addAccountRequest struct {
	Path         string `json:"path"`
	Password     string `json:"password"`
	CryptoScheme string `json:"cryptoScheme"`
	Suri         string `json:"suri"`
}

type createAccountRequest struct {
	Name     string `json:"name"`
	Suri     string `json:"suri"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID       string          `json:"id"`
	Path     string          `json:"path"`
	Overview ledger.Overview `json:"overview"`
}

func optionalBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// Add loads or creates a localchain.
func (h *Handler) Add(c *fiber.Ctx) error {
	var req addAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	handle, err := h.manager.AddAccount(c.UserContext(), AccountConfig{
		Path:         req.Path,
		Password:     optionalBytes(req.Password),
		CryptoScheme: ledger.CryptoScheme(req.CryptoScheme),
		Suri:         req.Suri,
	})
	if err != nil {
		return mapError(err)
	}
	overview, err := handle.Store.Overview(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{ID: handle.ID, Path: handle.Path, Overview: overview})
}

// Create adds a named localchain in the default directory.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	overview, err := h.manager.CreateAccount(c.UserContext(), req.Name, req.Suri, optionalBytes(req.Password))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(overview)
}

// Get returns the overview of the localchain owning :address.
func (h *Handler) Get(c *fiber.Ctx) error {
	handle, err := h.manager.Localchain(c.UserContext(), c.Params("address"))
	if err != nil {
		return mapError(err)
	}
	if handle == nil {
		return fiber.NewError(http.StatusNotFound, "no localchain found for address")
	}
	overview, err := handle.Store.Overview(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(accountResponse{ID: handle.ID, Path: handle.Path, Overview: overview})
}

// Sync runs a sync cycle immediately.
func (h *Handler) Sync(c *fiber.Ctx) error {
	result, err := h.manager.SyncNow(c.UserContext())
	switch {
	case errors.Is(err, ErrClosed):
		return mapError(err)
	case err != nil:
		return c.Status(http.StatusMultiStatus).JSON(fiber.Map{"result": result, "error": err.Error()})
	}
	return c.JSON(result)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrCrypto):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, localchain.ErrDuplicatePath):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrClosed):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ledger.ErrStorage):
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}
