// Package service authenticates the association admin and dealer profiles.
//
// A login is a password step optionally followed by a TOTP step. When the
// account has two-factor enabled, the password step returns a short-lived
// challenge token instead of a session; VerifyTOTP exchanges the challenge and
// a valid code for the session.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"unionregistry/internal/auth/metrics"
	"unionregistry/internal/auth/models"
	"unionregistry/internal/auth/token"
	dealermodels "unionregistry/internal/dealer/models"
	"unionregistry/internal/storage"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/sentinel"
	"unionregistry/pkg/requestcontext"
)

// systemActor records changes made by the server itself.
const systemActor = "system"

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, account *models.Account) error
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	FindByDealerID(ctx context.Context, dealerID id.DealerID) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	ListDealerProfiles(ctx context.Context) ([]*models.Account, error)
}

// TokenIssuer signs and checks session and challenge tokens.
type TokenIssuer interface {
	IssueSession(username, role, dealerID string, now time.Time) (string, time.Time, error)
	IssueChallenge(username, role string, now time.Time) (string, error)
	Parse(tokenString string, purpose token.Purpose) (*token.Claims, error)
}

// DealerDirectory checks that a profile is created for a live dealer.
type DealerDirectory interface {
	RequireActive(ctx context.Context, dealerID id.DealerID) (*dealermodels.Dealer, error)
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, actor string, action audit.Action, entityType audit.EntityType, entityID string, meta map[string]any) error
}

// Service owns credentials, 2FA enrolment and session issuance.
type Service struct {
	tx         storage.Tx
	accounts   Store
	tokens     TokenIssuer
	dealers    DealerDirectory
	audit      AuditRecorder
	limiter    *loginLimiter
	bcryptCost int
	dummyHash  []byte
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLoginRate bounds password and TOTP attempts per username.
func WithLoginRate(perMinute int) Option {
	return func(s *Service) {
		if perMinute > 0 {
			s.limiter = newLoginLimiter(perMinute)
		}
	}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(tx storage.Tx, accounts Store, tokens TokenIssuer, dealers DealerDirectory, recorder AuditRecorder, opts ...Option) *Service {
	s := &Service{
		tx:         tx,
		accounts:   accounts,
		tokens:     tokens,
		dealers:    dealers,
		audit:      recorder,
		limiter:    newLoginLimiter(10),
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Unknown usernames still pay for one bcrypt comparison.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(rand.Text()), s.bcryptCost)
	return s
}

// Login runs the password step for an account of the given role.
func (s *Service) Login(ctx context.Context, role models.Role, username, password string) (result *models.LoginResult, err error) {
	username = models.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	defer func() {
		s.recordLogin(role, err)
	}()

	if !s.limiter.allow(username) {
		s.logAudit(ctx, "login_rate_limited", "username", username)
		return nil, dErrors.New(dErrors.CodeRateLimited, "too many login attempts, try again later")
	}

	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if account == nil || account.Role != role {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.logAudit(ctx, "login_failed", "username", username, "role", string(role))
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logAudit(ctx, "login_failed", "username", username, "role", string(role))
		return nil, errInvalidCredentials
	}

	if account.TOTPEnabled {
		challenge, err := s.tokens.IssueChallenge(account.Username, string(account.Role), requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		return &models.LoginResult{
			TOTPRequired:   true,
			ChallengeToken: challenge,
			Username:       account.Username,
			Role:           account.Role,
		}, nil
	}
	return s.completeLogin(ctx, account)
}

// VerifyTOTP exchanges a login challenge and a current code for a session.
func (s *Service) VerifyTOTP(ctx context.Context, challenge, code string) (result *models.LoginResult, err error) {
	claims, err := s.tokens.Parse(challenge, token.PurposeChallenge)
	if err != nil {
		return nil, err
	}
	role := models.Role(claims.Role)
	defer func() {
		s.recordLogin(role, err)
	}()

	if !s.limiter.allow(claims.Subject) {
		s.logAudit(ctx, "login_rate_limited", "username", claims.Subject)
		return nil, dErrors.New(dErrors.CodeRateLimited, "too many login attempts, try again later")
	}
	account, err := s.loadAccount(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !account.TOTPEnabled {
		return nil, dErrors.New(dErrors.CodeInvalidState, "two-factor authentication is not enabled")
	}
	if !validCode(ctx, account.TOTPSecret, code) {
		s.logAudit(ctx, "totp_failed", "username", account.Username)
		return nil, errInvalidCode
	}
	return s.completeLogin(ctx, account)
}

func (s *Service) completeLogin(ctx context.Context, account *models.Account) (*models.LoginResult, error) {
	now := requestcontext.Now(ctx)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		account.ApplyLogin(now)
		if err := s.accounts.Update(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dealerID := ""
	if account.IsDealer() {
		dealerID = account.DealerID.String()
	}
	session, expiresAt, err := s.tokens.IssueSession(account.Username, string(account.Role), dealerID, now)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "login_succeeded", "username", account.Username, "role", string(account.Role))
	return &models.LoginResult{
		Token:              session,
		ExpiresAt:          &expiresAt,
		MustChangePassword: account.TemporaryPassword,
		Username:           account.Username,
		Role:               account.Role,
		DealerID:           dealerID,
	}, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	if err := models.ValidatePassword(next); err != nil {
		return err
	}
	if current == next {
		return dErrors.New(dErrors.CodeValidation, "new password must differ from the current password")
	}
	hash, err := s.hash(next)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		account, err := s.loadAccount(ctx, username)
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
			return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
		}
		account.ApplyPassword(hash, false, requestcontext.Now(ctx))
		if err := s.accounts.Update(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
		}
		return s.audit.Record(ctx, account.Username, audit.ActionUpdate, entityOf(account), account.ID.String(), map[string]any{
			"change": "password",
		})
	})
}

// ListProfiles returns every dealer profile.
func (s *Service) ListProfiles(ctx context.Context) ([]*models.Account, error) {
	profiles, err := s.accounts.ListDealerProfiles(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list dealer profiles")
	}
	return profiles, nil
}

func (s *Service) loadAccount(ctx context.Context, username string) (*models.Account, error) {
	account, err := s.accounts.FindByUsername(ctx, models.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	return string(hash), nil
}

func (s *Service) recordLogin(role models.Role, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.IncrementLogin(string(role), outcome)
}

// logAudit emits a security event to the structured log.
func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func entityOf(account *models.Account) audit.EntityType {
	if account.IsDealer() {
		return audit.EntityDealerProfile
	}
	return audit.EntityAccount
}

func newAccountID() id.ProfileID {
	return id.ProfileID(uuid.New())
}

var (
	errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")
	errInvalidCode        = dErrors.New(dErrors.CodeUnauthorized, "invalid verification code")
)
