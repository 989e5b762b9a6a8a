// Package payments routes argon files and transfers to the right localchain
// and runs every ledger mutation through the mutation queue.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/localchain"
	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/queue"
)

// ErrLocalchainNotFound indicates no loaded localchain owns the address.
var ErrLocalchainNotFound = errors.New("no localchain found for address")

// Router picks the localchain for each argon operation.
type Router struct {
	handles *localchain.Registry
	queue   *queue.Queue
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter constructs a router over the registered localchains.
func NewRouter(handles *localchain.Registry, q *queue.Queue, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Router{handles: handles, queue: q, logger: logger, now: time.Now}
}

// SendRequest describes argons to move into a send file.
type SendRequest struct {
	Milligons   int64
	FromAddress string
	ToAddress   string
}

// RequestRequest describes argons to ask for in a request file.
type RequestRequest struct {
	Milligons       int64
	SendToMyAddress string
}

// pick returns the handle owning address, or the first handle.
func (r *Router) pick(ctx context.Context, address string) (*localchain.Handle, error) {
	h, err := r.handles.FindByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = r.handles.First()
	}
	if h == nil {
		return nil, fmt.Errorf("%w: no localchain loaded", ErrLocalchainNotFound)
	}
	return h, nil
}

func (r *Router) exact(ctx context.Context, address string) (*localchain.Handle, error) {
	h, err := r.handles.FindByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %q", ErrLocalchainNotFound, address)
	}
	return h, nil
}

// CreateSendFile debits the source localchain and returns a file the
// recipient can import. Without a ToAddress anyone holding the file may claim it.
func (r *Router) CreateSendFile(ctx context.Context, req SendRequest) (argonfile.Meta, error) {
	if req.Milligons <= 0 {
		return argonfile.Meta{}, fmt.Errorf("%w: amount must be positive", argons.ErrInvalidAmount)
	}
	h, err := r.pick(ctx, req.FromAddress)
	if err != nil {
		return argonfile.Meta{}, err
	}
	var recipients []string
	if req.ToAddress != "" {
		recipients = []string{req.ToAddress}
	}

	raw, err := queue.Do(ctx, r.queue, func(ctx context.Context) (string, error) {
		return h.Store.SendFile(ctx, req.Milligons, recipients)
	})
	if err != nil {
		return argonfile.Meta{}, fmt.Errorf("create send file: %w", err)
	}
	file, err := argonfile.Parse([]byte(raw))
	if err != nil {
		return argonfile.Meta{}, err
	}
	return argonfile.Meta{
		RawJSON: raw,
		File:    file,
		Name:    argonfile.SendFileName(req.Milligons, req.ToAddress),
	}, nil
}

// CreateRequestFile builds a request payable to SendToMyAddress, or to the
// first localchain.
func (r *Router) CreateRequestFile(ctx context.Context, req RequestRequest) (argonfile.Meta, error) {
	if req.Milligons <= 0 {
		return argonfile.Meta{}, fmt.Errorf("%w: amount must be positive", argons.ErrInvalidAmount)
	}
	h, err := r.pick(ctx, req.SendToMyAddress)
	if err != nil {
		return argonfile.Meta{}, err
	}
	raw, err := h.Store.RequestFile(ctx, req.Milligons)
	if err != nil {
		return argonfile.Meta{}, fmt.Errorf("create request file: %w", err)
	}
	file, err := argonfile.Parse([]byte(raw))
	if err != nil {
		return argonfile.Meta{}, err
	}
	return argonfile.Meta{
		RawJSON: raw,
		File:    file,
		Name:    argonfile.RequestFileName(r.now()),
	}, nil
}

// AcceptRequest funds a request file. Without fulfillFrom, the first
// localchain whose balance covers the request pays, else the first localchain.
func (r *Router) AcceptRequest(ctx context.Context, raw []byte, fulfillFrom string) (ledger.Notarization, error) {
	file, err := argonfile.Parse(raw)
	if err != nil {
		return ledger.Notarization{}, err
	}
	if !file.IsRequest() {
		return ledger.Notarization{}, fmt.Errorf("%w: file is not a request", argonfile.ErrInvalidFileType)
	}
	canonical, err := argonfile.Marshal(file)
	if err != nil {
		return ledger.Notarization{}, err
	}

	from := fulfillFrom
	if from == "" {
		from, err = r.fundingAddress(ctx, argonfile.RequiredFunding(file))
		if err != nil {
			return ledger.Notarization{}, err
		}
	}
	h, err := r.pick(ctx, from)
	if err != nil {
		return ledger.Notarization{}, err
	}

	return r.notarize(ctx, h, "Argon request notarized", func(ctx context.Context, cs ledger.ChangeSet) error {
		return cs.AcceptArgonRequest(ctx, string(canonical))
	})
}

// fundingAddress returns the address of the first localchain, in
// registration order, whose balance covers required.
func (r *Router) fundingAddress(ctx context.Context, required int64) (string, error) {
	for _, h := range r.handles.All() {
		overview, err := h.Store.Overview(ctx)
		if err != nil {
			return "", fmt.Errorf("overview %s: %w", h.Path, err)
		}
		if overview.Balance >= required {
			return overview.Address, nil
		}
	}
	return "", nil
}

// ImportSendFile claims a send file into the first localchain named as a
// recipient, or the first localchain when none is.
func (r *Router) ImportSendFile(ctx context.Context, raw []byte) (ledger.Notarization, error) {
	file, err := argonfile.Parse(raw)
	if err != nil {
		return ledger.Notarization{}, err
	}
	if !file.IsSend() {
		return ledger.Notarization{}, fmt.Errorf("%w: file does not contain sent argons", argonfile.ErrInvalidFileType)
	}
	canonical, err := argonfile.Marshal(file)
	if err != nil {
		return ledger.Notarization{}, err
	}

	var target *localchain.Handle
	for _, address := range argonfile.SendTargets(file) {
		h, err := r.handles.FindByAddress(ctx, address)
		if err != nil {
			return ledger.Notarization{}, err
		}
		if h != nil {
			target = h
			break
		}
	}
	if target == nil {
		if target, err = r.pick(ctx, ""); err != nil {
			return ledger.Notarization{}, err
		}
	}

	return r.notarize(ctx, target, "Argon file import notarized", func(ctx context.Context, cs ledger.ChangeSet) error {
		return cs.ImportArgonFile(ctx, string(canonical))
	})
}

// TransferLocalToMainchain moves milligons from the localchain owning address
// to its mainchain account.
func (r *Router) TransferLocalToMainchain(ctx context.Context, address string, milligons int64) (ledger.Notarization, error) {
	if milligons <= 0 {
		return ledger.Notarization{}, fmt.Errorf("%w: amount must be positive", argons.ErrInvalidAmount)
	}
	h, err := r.exact(ctx, address)
	if err != nil {
		return ledger.Notarization{}, err
	}
	return r.notarize(ctx, h, "Localchain to mainchain transfer notarized", func(ctx context.Context, cs ledger.ChangeSet) error {
		return cs.SendToMainchain(ctx, milligons)
	})
}

// TransferMainchainToLocal asks the mainchain to fund the localchain owning
// address. Nothing changes locally until the next sync claims the transfer.
func (r *Router) TransferMainchainToLocal(ctx context.Context, address string, milligons int64) (string, error) {
	if milligons <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", argons.ErrInvalidAmount)
	}
	h, err := r.exact(ctx, address)
	if err != nil {
		return "", err
	}
	id, err := h.Store.SendToLocalchain(ctx, milligons)
	if err != nil {
		return "", fmt.Errorf("transfer to localchain: %w", err)
	}
	r.logger.Info("Mainchain to localchain transfer submitted",
		slog.String("localchain", h.Path),
		slog.String("transfer_id", id),
		slog.Int64("milligons", milligons),
	)
	return id, nil
}

func (r *Router) notarize(ctx context.Context, h *localchain.Handle, msg string, apply func(context.Context, ledger.ChangeSet) error) (ledger.Notarization, error) {
	n, err := queue.Do(ctx, r.queue, func(ctx context.Context) (ledger.Notarization, error) {
		cs := h.Store.BeginChange()
		if err := apply(ctx, cs); err != nil {
			return ledger.Notarization{}, err
		}
		return cs.Notarize(ctx)
	})
	if err != nil {
		var orphan *ledger.OrphanedTransferError
		if errors.As(err, &orphan) {
			r.logger.Error("Mainchain transfer submitted without a notarization",
				slog.String("localchain", h.Path),
				slog.String("transfer_id", orphan.TransferID),
				slog.Any("error", orphan.Err),
			)
		}
		return ledger.Notarization{}, err
	}
	r.logger.Info(msg,
		slog.String("localchain", h.Path),
		slog.String("notarization_id", n.ID),
		slog.Int64("tick", n.Tick),
		slog.Int64("delta", n.Delta),
		slog.Int64("balance", n.Balance),
	)
	return n, nil
}
