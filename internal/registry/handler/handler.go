package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"unionregistry/internal/registry/models"
	"unionregistry/internal/registry/service"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	"unionregistry/pkg/platform/middleware/auth"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	RegisterEmployee(ctx context.Context, actor string, cmd models.RegisterEmployee) (*models.EmployeeRegistration, error)
	EndEmployment(ctx context.Context, actor string, cmd models.EndEmployment) (*models.EndedEmployment, error)
	ListEmployees(ctx context.Context, dealerID id.DealerID) ([]*models.EmployeeListing, error)
	PersonHistory(ctx context.Context, personID id.PersonID) (*models.PersonRecord, error)
	SearchPersons(ctx context.Context, criteria models.PersonCriteria, limit int) ([]*models.PersonRecord, error)

	RegisterClient(ctx context.Context, actor string, cmd models.RegisterClient) (*models.ClientRegistration, error)
	AddVehicle(ctx context.Context, actor string, clientID id.ClientID, input models.VehicleInput) (*models.Vehicle, error)
	OffboardClient(ctx context.Context, actor string, cmd models.OffboardClient) (*models.Link, error)
	ClientDetails(ctx context.Context, clientID id.ClientID) (*models.ClientRecord, error)
	ListClients(ctx context.Context, dealerID id.DealerID) ([]*models.ClientListing, error)
	SearchClients(ctx context.Context, criteria models.ClientCriteria, limit int) ([]*models.ClientRecord, error)

	GlobalSearch(ctx context.Context, query string, kind service.SearchKind, limit int) (*models.GlobalSearchResult, error)
	HomeMetrics(ctx context.Context) (*models.HomeMetrics, error)
}

// Handler serves the employee and client registers.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a registry Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the registry routes. The caller applies RequireActor.
func (h *Handler) Register(r chi.Router) {
	r.Post("/employees", h.handleRegisterEmployee)
	r.Get("/employees", h.handleListEmployees)
	r.Get("/employees/search", h.handleSearchEmployees)
	r.Get("/persons/{id}", h.handlePersonHistory)
	r.Patch("/employments/{id}/end", h.handleEndEmployment)

	r.Post("/clients", h.handleRegisterClient)
	r.Get("/clients", h.handleListClients)
	r.Get("/clients/search", h.handleSearchClients)
	r.Get("/clients/{id}", h.handleGetClient)
	r.Post("/clients/{id}/vehicles", h.handleAddVehicle)
	r.Post("/clients/{id}/offboard", h.handleOffboardClient)

	r.Get("/search", h.handleGlobalSearch)
	r.Get("/search/employee", h.searchOf(service.SearchPersons))
	r.Get("/search/client", h.searchOf(service.SearchClients))
	r.Get("/metrics/home", h.handleHomeMetrics)
}

func (h *Handler) handleRegisterEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterEmployeeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := auth.CanActFor(ctx, cmd.DealerID); err != nil {
		h.logFailure(ctx, "dealer session rejected", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.RegisterEmployee(ctx, requestcontext.Actor(ctx), cmd)
	if err != nil {
		h.logFailure(ctx, "failed to register employee", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	if result.Conflict != nil {
		httputil.WriteJSON(w, http.StatusConflict, conflictResponse(result.Conflict))
		return
	}
	status := http.StatusCreated
	if result.AlreadyActive {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, EmployeeResponse{
		Person:        result.Person,
		Employment:    result.Employment,
		AlreadyActive: result.AlreadyActive,
	})
}

func (h *Handler) handleEndEmployment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	employmentID, err := id.ParseEmploymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EndEmploymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := req.toCommand(employmentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.EndEmployment(ctx, requestcontext.Actor(ctx), cmd)
	if err != nil {
		h.logFailure(ctx, "failed to end employment", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealerID, ok := h.dealerScope(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListEmployees(ctx, dealerID)
	if err != nil {
		h.logFailure(ctx, "failed to list employees", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleSearchEmployees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	criteria := models.PersonCriteria{
		NationalID: q.Get("nationalId"),
		Name:       q.Get("name"),
		Mobile:     q.Get("mobile"),
	}
	rows, err := h.service.SearchPersons(ctx, criteria, limitParam(r))
	if err != nil {
		h.logFailure(ctx, "failed to search employees", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handlePersonHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, err := id.ParsePersonID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.PersonHistory(ctx, personID)
	if err != nil {
		h.logFailure(ctx, "failed to load person", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterClientRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := auth.CanActFor(ctx, cmd.DealerID); err != nil {
		h.logFailure(ctx, "dealer session rejected", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.RegisterClient(ctx, requestcontext.Actor(ctx), cmd)
	if err != nil {
		h.logFailure(ctx, "failed to register client", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	if result.Conflict != nil {
		httputil.WriteJSON(w, http.StatusConflict, conflictResponse(result.Conflict))
		return
	}
	status := http.StatusCreated
	if !result.NewClient && result.LinkReused {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, ClientResponse{
		Client:     result.Client,
		Link:       result.Link,
		Vehicles:   result.Vehicles,
		NewClient:  result.NewClient,
		LinkReused: result.LinkReused,
	})
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealerID, ok := h.dealerScope(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ListClients(ctx, dealerID)
	if err != nil {
		h.logFailure(ctx, "failed to list clients", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleSearchClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	criteria := models.ClientCriteria{
		TaxID:               firstOf(q.Get("taxId"), q.Get("pan")),
		GovClientKey:        q.Get("govId"),
		VehicleRegistration: q.Get("vehicle"),
		Name:                firstOf(q.Get("name"), q.Get("org")),
	}
	rows, err := h.service.SearchClients(ctx, criteria, limitParam(r))
	if err != nil {
		h.logFailure(ctx, "failed to search clients", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.ClientDetails(ctx, clientID)
	if err != nil {
		h.logFailure(ctx, "failed to load client", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleAddVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	clientID, err := id.ParseClientID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[VehicleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	vehicle, err := h.service.AddVehicle(ctx, requestcontext.Actor(ctx), clientID, req.toInput())
	if err != nil {
		h.logFailure(ctx, "failed to add vehicle", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, vehicle)
}

func (h *Handler) handleOffboardClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	clientID, err := id.ParseClientID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[OffboardClientRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	on, err := models.ParseDay(req.Date, "offboardingDate")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	link, err := h.service.OffboardClient(ctx, requestcontext.Actor(ctx), models.OffboardClient{
		ClientID: clientID,
		Date:     on,
		Reason:   req.Reason,
	})
	if err != nil {
		h.logFailure(ctx, "failed to offboard client", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, link)
}

func (h *Handler) handleGlobalSearch(w http.ResponseWriter, r *http.Request) {
	h.globalSearch(w, r, service.SearchKind(r.URL.Query().Get("type")))
}

// searchOf serves the single-register search aliases.
func (h *Handler) searchOf(kind service.SearchKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.globalSearch(w, r, kind)
	}
}

func (h *Handler) globalSearch(w http.ResponseWriter, r *http.Request, kind service.SearchKind) {
	ctx := r.Context()
	q := r.URL.Query()
	result, err := h.service.GlobalSearch(ctx, firstOf(q.Get("query"), q.Get("q")), kind, limitParam(r))
	if err != nil {
		h.logFailure(ctx, "failed to search", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHomeMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.service.HomeMetrics(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to load home metrics", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// dealerScope resolves ?dealerId for dashboard listings. Dealer sessions
// default to their own dealer and may not read another's.
func (h *Handler) dealerScope(w http.ResponseWriter, r *http.Request) (id.DealerID, bool) {
	ctx := r.Context()
	raw := r.URL.Query().Get("dealerId")
	if raw == "" {
		return requestcontext.DealerID(ctx), true
	}
	dealerID, err := id.ParseDealerID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return id.DealerID{}, false
	}
	if err := auth.CanActFor(ctx, dealerID); err != nil {
		httputil.WriteError(w, err)
		return id.DealerID{}, false
	}
	return dealerID, true
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
