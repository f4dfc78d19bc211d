package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"unionregistry/internal/transfer/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	"unionregistry/pkg/platform/middleware/auth"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/requestcontext"
)

// Service defines the transfer operations exposed over HTTP.
type Service interface {
	RequestTransfer(ctx context.Context, actor string, cmd models.RequestTransfer) (*models.TransferRequest, error)
	ApproveTransfer(ctx context.Context, actor string, transferID id.TransferID) (*models.TransferRequest, error)
	RejectTransfer(ctx context.Context, actor string, transferID id.TransferID) (*models.TransferRequest, error)
	CancelTransfer(ctx context.Context, actor string, transferID id.TransferID) (*models.TransferRequest, error)
	GetTransfer(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error)
	ListTransfers(ctx context.Context, filter models.Filter) ([]*models.TransferRequest, error)
}

// Handler serves the transfer review queue.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the transfer routes. The caller applies RequireActor.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transfers", h.handleRequestTransfer)
	r.Get("/transfers", h.handleListTransfers)
	r.Get("/transfers/{id}", h.handleGetTransfer)
	r.Post("/transfers/{id}/approve", h.decision("approve", h.service.ApproveTransfer))
	r.Post("/transfers/{id}/reject", h.decision("reject", h.service.RejectTransfer))
	r.Post("/transfers/{id}/cancel", h.decision("cancel", h.service.CancelTransfer))
}

// RequestTransferBody is the body of POST /transfers.
type RequestTransferBody struct {
	ClientID     string `json:"clientId"`
	FromDealerID string `json:"fromDealerId"`
	ToDealerID   string `json:"toDealerId"`
	Reason       string `json:"reason"`
}

func (b *RequestTransferBody) Validate() error {
	if b.ClientID == "" || b.FromDealerID == "" || b.ToDealerID == "" {
		return dErrors.New(dErrors.CodeValidation, "clientId, fromDealerId and toDealerId are required")
	}
	return nil
}

func (b *RequestTransferBody) toCommand() (models.RequestTransfer, error) {
	clientID, err := id.ParseClientID(b.ClientID)
	if err != nil {
		return models.RequestTransfer{}, err
	}
	from, err := id.ParseDealerID(b.FromDealerID)
	if err != nil {
		return models.RequestTransfer{}, err
	}
	to, err := id.ParseDealerID(b.ToDealerID)
	if err != nil {
		return models.RequestTransfer{}, err
	}
	return models.RequestTransfer{ClientID: clientID, FromDealerID: from, ToDealerID: to, Reason: b.Reason}, nil
}

func (h *Handler) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	body, ok := httputil.DecodeAndPrepare[RequestTransferBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := body.toCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	transfer, err := h.service.RequestTransfer(ctx, requestcontext.Actor(ctx), cmd)
	if err != nil {
		h.logFailure(ctx, "failed to request transfer", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, transfer)
}

func (h *Handler) decision(name string, fn func(context.Context, string, id.TransferID) (*models.TransferRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := request.GetRequestID(ctx)

		transferID, err := id.ParseTransferID(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		transfer, err := fn(ctx, requestcontext.Actor(ctx), transferID)
		if err != nil {
			h.logFailure(ctx, "failed to "+name+" transfer", requestID, err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, transfer)
	}
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transferID, err := id.ParseTransferID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	transfer, err := h.service.GetTransfer(ctx, transferID)
	if err != nil {
		h.logFailure(ctx, "failed to load transfer", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	if err := canSee(ctx, transfer); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transfer)
}

// handleListTransfers serves GET /transfers?status=&dealerId=&clientId=.
// A dealer session without dealerId sees the transfers touching its dealer.
func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.Filter{
		Status:   models.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		DealerID: requestcontext.DealerID(ctx),
	}
	if raw := q.Get("dealerId"); raw != "" {
		dealerID, err := id.ParseDealerID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := auth.CanActFor(ctx, dealerID); err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.DealerID = dealerID
	}
	if raw := q.Get("clientId"); raw != "" {
		clientID, err := id.ParseClientID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.ClientID = clientID
	}

	transfers, err := h.service.ListTransfers(ctx, filter)
	if err != nil {
		h.logFailure(ctx, "failed to list transfers", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	if transfers == nil {
		transfers = []*models.TransferRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, transfers)
}

// canSee lets a dealer session read transfers on either side of its dealer.
func canSee(ctx context.Context, t *models.TransferRequest) error {
	if auth.CanActFor(ctx, t.FromDealerID) == nil {
		return nil
	}
	return auth.CanActFor(ctx, t.ToDealerID)
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
