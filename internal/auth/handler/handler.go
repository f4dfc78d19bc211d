package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"unionregistry/internal/auth/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/requestcontext"
)

// Service defines the login and profile operations exposed over HTTP.
type Service interface {
	Login(ctx context.Context, role models.Role, username, password string) (*models.LoginResult, error)
	VerifyTOTP(ctx context.Context, challenge, code string) (*models.LoginResult, error)
	EnableTOTP(ctx context.Context, username, code string) error
	TOTPSetup(ctx context.Context, username string) (string, error)
	ChangePassword(ctx context.Context, username, current, next string) error
	CreateDealerProfile(ctx context.Context, actor string, req *models.CreateProfileRequest) (*models.ProfileCreated, error)
	ResetPassword(ctx context.Context, actor string, dealerID id.DealerID) (string, error)
	ListProfiles(ctx context.Context) ([]*models.Account, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the anonymous login routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/login", h.login(models.RoleAdmin))
	r.Post("/dealer/login", h.login(models.RoleDealer))
	r.Post("/auth/verify-totp", h.handleVerifyTOTP)
}

// RegisterSession mounts routes for a logged-in account. The caller applies
// RequireSession.
func (h *Handler) RegisterSession(r chi.Router) {
	r.Post("/auth/enable-totp", h.handleEnableTOTP)
	r.Get("/auth/totp-setup", h.handleTOTPSetup)
	r.Post("/dealer/change-password", h.handleChangePassword)
}

// RegisterAdmin mounts profile administration. The caller applies RequireAdmin.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/dealer-profiles", h.handleCreateProfile)
	r.Get("/dealer-profiles", h.handleListProfiles)
	r.Post("/reset-dealer-password", h.handleResetPassword)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return nil
}

type VerifyTOTPRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

func (r *VerifyTOTPRequest) Validate() error {
	if r.ChallengeToken == "" || strings.TrimSpace(r.Code) == "" {
		return dErrors.New(dErrors.CodeValidation, "challengeToken and code are required")
	}
	return nil
}

type EnableTOTPRequest struct {
	Code string `json:"code"`
}

func (r *EnableTOTPRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	return nil
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "currentPassword is required")
	}
	return models.ValidatePassword(r.NewPassword)
}

type ResetPasswordRequest struct {
	DealerID string `json:"dealerId"`
}

func (r *ResetPasswordRequest) Validate() error {
	if strings.TrimSpace(r.DealerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "dealerId is required")
	}
	return nil
}

func (h *Handler) login(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := request.GetRequestID(ctx)

		req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		result, err := h.service.Login(ctx, role, req.Username, req.Password)
		if err != nil {
			h.logFailure(ctx, "login failed", requestID, err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) handleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyTOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.VerifyTOTP(ctx, req.ChallengeToken, req.Code)
	if err != nil {
		h.logFailure(ctx, "totp verification failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEnableTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EnableTOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.EnableTOTP(ctx, requestcontext.SessionUser(ctx), req.Code); err != nil {
		h.logFailure(ctx, "failed to enable totp", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"totp_enabled": true})
}

func (h *Handler) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uri, err := h.service.TOTPSetup(ctx, requestcontext.SessionUser(ctx))
	if err != nil {
		h.logFailure(ctx, "failed to load totp setup", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"totp_uri": uri})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	err := h.service.ChangePassword(ctx, requestcontext.SessionUser(ctx), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.logFailure(ctx, "failed to change password", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	created, err := h.service.CreateDealerProfile(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		h.logFailure(ctx, "failed to create dealer profile", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profiles, err := h.service.ListProfiles(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list dealer profiles", request.GetRequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	if profiles == nil {
		profiles = []*models.Account{}
	}
	httputil.WriteJSON(w, http.StatusOK, profiles)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ResetPasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	dealerID, err := id.ParseDealerID(req.DealerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	temporary, err := h.service.ResetPassword(ctx, requestcontext.Actor(ctx), dealerID)
	if err != nil {
		h.logFailure(ctx, "failed to reset dealer password", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"temporary_password": temporary})
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
