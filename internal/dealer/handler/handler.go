package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"unionregistry/internal/dealer/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/requestcontext"
)

// Service defines the dealer operations exposed over HTTP.
type Service interface {
	CreateDealer(ctx context.Context, actor string, req *models.CreateDealerRequest) (*models.Dealer, error)
	GetDealer(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error)
	ListDealers(ctx context.Context) ([]*models.Dealer, error)
	SetStatus(ctx context.Context, actor string, dealerID id.DealerID, status models.Status) (*models.Dealer, error)
}

// Handler serves the dealer directory.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a dealer Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts read-only routes available to any actor.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/dealers", h.handleListDealers)
}

// RegisterAdmin mounts the admin routes. The caller applies RequireAdmin.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/dealers", h.handleCreateDealer)
	r.Get("/dealers", h.handleListDealers)
	r.Get("/dealers/{id}", h.handleGetDealer)
	r.Patch("/dealers/{id}", h.handleUpdateDealer)
}

func (h *Handler) handleCreateDealer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateDealerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	dealer, err := h.service.CreateDealer(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		h.logFailure(ctx, "failed to create dealer", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dealer)
}

func (h *Handler) handleListDealers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealers, err := h.service.ListDealers(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list dealers", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	if dealers == nil {
		dealers = []*models.Dealer{}
	}
	httputil.WriteJSON(w, http.StatusOK, dealers)
}

func (h *Handler) handleGetDealer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealerID, err := id.ParseDealerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dealer, err := h.service.GetDealer(ctx, dealerID)
	if err != nil {
		h.logFailure(ctx, "failed to get dealer", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dealer)
}

func (h *Handler) handleUpdateDealer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	dealerID, err := id.ParseDealerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateDealerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	dealer, err := h.service.SetStatus(ctx, requestcontext.Actor(ctx), dealerID, req.Status)
	if err != nil {
		h.logFailure(ctx, "failed to update dealer", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dealer)
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
