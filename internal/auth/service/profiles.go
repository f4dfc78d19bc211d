package service

import (
	"context"
	"crypto/rand"
	"errors"

	"unionregistry/internal/auth/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/sentinel"
	"unionregistry/pkg/requestcontext"
)

// CreateDealerProfile creates the login for an ACTIVE dealer with a temporary
// password and a provisioned, not yet enabled, TOTP secret. The password and
// the provisioning URI are returned once and never stored in clear.
func (s *Service) CreateDealerProfile(ctx context.Context, actor string, req *models.CreateProfileRequest) (*models.ProfileCreated, error) {
	dealerID, err := id.ParseDealerID(req.DealerID)
	if err != nil {
		return nil, err
	}
	username := models.NormalizeUsername(req.Username)

	temporary := rand.Text()
	hash, err := s.hash(temporary)
	if err != nil {
		return nil, err
	}
	key, err := newTOTPKey(username)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	account := &models.Account{
		ID:                newAccountID(),
		Username:          username,
		Role:              models.RoleDealer,
		DealerID:          dealerID,
		PasswordHash:      hash,
		Email:             req.Email,
		Mobile:            req.Mobile,
		TOTPSecret:        key.Secret(),
		TemporaryPassword: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.dealers.RequireActive(ctx, dealerID); err != nil {
			return err
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "username is taken or the dealer already has a profile")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create dealer profile")
		}
		return s.audit.Record(ctx, actor, audit.ActionCreate, audit.EntityDealerProfile, account.ID.String(), map[string]any{
			"dealerId": dealerID.String(),
			"username": username,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dealer profile created",
		"profile_id", account.ID.String(),
		"dealer_id", dealerID.String(),
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementProfileCreated()
	}
	return &models.ProfileCreated{Account: account, TemporaryPassword: temporary, TOTPURI: key.URL()}, nil
}

// ResetPassword gives a dealer's profile a new temporary password.
func (s *Service) ResetPassword(ctx context.Context, actor string, dealerID id.DealerID) (string, error) {
	temporary := rand.Text()
	hash, err := s.hash(temporary)
	if err != nil {
		return "", err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.accounts.FindByDealerID(ctx, dealerID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "dealer profile not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dealer profile")
		}
		account.ApplyPassword(hash, true, requestcontext.Now(ctx))
		if err := s.accounts.Update(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset password")
		}
		return s.audit.Record(ctx, actor, audit.ActionResetPassword, audit.EntityDealerProfile, account.ID.String(), map[string]any{
			"dealerId": dealerID.String(),
		})
	})
	if err != nil {
		return "", err
	}

	s.logAudit(ctx, "password_reset", "dealer_id", dealerID.String(), "actor", actor)
	if s.metrics != nil {
		s.metrics.IncrementPasswordReset()
	}
	return temporary, nil
}

// EnsureAdmin creates the admin account on first start. The password is
// temporary and must be changed at first login. It reports whether an account
// was created; an empty password skips the bootstrap.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	_, err := s.accounts.FindByUsername(ctx, models.AdminUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin account")
	}
	if password == "" {
		s.logger.WarnContext(ctx, "no admin account and no bootstrap password; admin login is unavailable")
		return false, nil
	}
	if err := models.ValidatePassword(password); err != nil {
		return false, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return false, err
	}
	key, err := newTOTPKey(models.AdminUsername)
	if err != nil {
		return false, err
	}
	now := requestcontext.Now(ctx)
	account := &models.Account{
		ID:                newAccountID(),
		Username:          models.AdminUsername,
		Role:              models.RoleAdmin,
		PasswordHash:      hash,
		TOTPSecret:        key.Secret(),
		TemporaryPassword: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create admin account")
		}
		return s.audit.Record(ctx, systemActor, audit.ActionCreate, audit.EntityAccount, account.ID.String(), map[string]any{
			"username": account.Username,
		})
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		// another instance bootstrapped first
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "admin account created", "username", account.Username)
	return true, nil
}
