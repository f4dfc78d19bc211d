package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"unionregistry/internal/auth/models"
	"unionregistry/internal/auth/store"
	"unionregistry/internal/auth/token"
	dealermodels "unionregistry/internal/dealer/models"
	dealerservice "unionregistry/internal/dealer/service"
	dealerstore "unionregistry/internal/dealer/store"
	"unionregistry/internal/storage/memory"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/audit/mocks"
	"unionregistry/pkg/platform/audit/recorder"
	auditmemory "unionregistry/pkg/platform/audit/store/memory"
)

const adminPassword = "bootstrap-secret"

type AuthSuite struct {
	suite.Suite
	ctx      context.Context
	db       *memory.DB
	audit    *auditmemory.InMemoryStore
	accounts *store.InMemory
	tokens   *token.JWTService
	dealers  *dealerservice.Service
	service  *Service
	dealer   *dealermodels.Dealer
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthSuite))
}

func (s *AuthSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = memory.New()
	s.audit = auditmemory.NewInMemoryStore(s.db)
	rec := recorder.New(s.audit)
	s.accounts = store.NewInMemory(s.db)
	s.tokens = token.NewJWTService("test-key", "test-issuer", time.Hour)
	s.dealers = dealerservice.New(s.db, dealerstore.NewInMemory(s.db), rec)
	s.service = New(s.db, s.accounts, s.tokens, s.dealers, rec, WithBcryptCost(bcrypt.MinCost), WithLoginRate(3))

	var err error
	s.dealer, err = s.dealers.CreateDealer(s.ctx, "admin", &dealermodels.CreateDealerRequest{LegalName: "Kale Fuels"})
	s.Require().NoError(err)

	created, err := s.service.EnsureAdmin(s.ctx, adminPassword)
	s.Require().NoError(err)
	s.Require().True(created)
}

func (s *AuthSuite) createProfile(username string) *models.ProfileCreated {
	created, err := s.service.CreateDealerProfile(s.ctx, "admin", &models.CreateProfileRequest{
		DealerID: s.dealer.ID.String(),
		Username: username,
	})
	s.Require().NoError(err)
	return created
}

func (s *AuthSuite) TestEnsureAdminIsIdempotent() {
	created, err := s.service.EnsureAdmin(s.ctx, "another-password")
	s.Require().NoError(err)
	s.False(created)

	res, err := s.service.Login(s.ctx, models.RoleAdmin, "admin", adminPassword)
	s.Require().NoError(err)
	s.NotEmpty(res.Token)
	s.True(res.MustChangePassword)
}

func (s *AuthSuite) TestLoginIssuesSessionToken() {
	created := s.createProfile("Pump7")
	s.Equal("pump7", created.Account.Username)
	s.Contains(created.TOTPURI, "otpauth://totp/")

	res, err := s.service.Login(s.ctx, models.RoleDealer, " PUMP7 ", created.TemporaryPassword)
	s.Require().NoError(err)
	s.False(res.TOTPRequired)
	s.Equal(s.dealer.ID.String(), res.DealerID)

	claims, err := s.tokens.Parse(res.Token, token.PurposeSession)
	s.Require().NoError(err)
	s.Equal("pump7", claims.Subject)
	s.Equal(string(models.RoleDealer), claims.Role)

	account, err := s.accounts.FindByUsername(s.ctx, "pump7")
	s.Require().NoError(err)
	s.NotNil(account.LastLoginAt)
}

func (s *AuthSuite) TestLoginRejectsBadCredentials() {
	created := s.createProfile("pump7")

	cases := []struct {
		name     string
		role     models.Role
		username string
		password string
	}{
		{"wrong password", models.RoleDealer, "pump7", "not-the-password"},
		{"unknown user", models.RoleDealer, "ghost", created.TemporaryPassword},
		{"dealer on admin login", models.RoleAdmin, "pump7", created.TemporaryPassword},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Login(s.ctx, tc.role, tc.username, tc.password)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func (s *AuthSuite) TestLoginIsRateLimitedPerUsername() {
	for range 3 {
		_, err := s.service.Login(s.ctx, models.RoleAdmin, "admin", "wrong-password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
	_, err := s.service.Login(s.ctx, models.RoleAdmin, "admin", adminPassword)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	created := s.createProfile("pump7")
	_, err = s.service.Login(s.ctx, models.RoleDealer, "pump7", created.TemporaryPassword)
	s.NoError(err)
}

func (s *AuthSuite) TestTOTPEnrolmentAndChallenge() {
	created := s.createProfile("pump7")
	account, err := s.accounts.FindByUsername(s.ctx, "pump7")
	s.Require().NoError(err)

	err = s.service.EnableTOTP(s.ctx, "pump7", "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	code, err := totp.GenerateCode(account.TOTPSecret, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.service.EnableTOTP(s.ctx, "pump7", code))
	s.True(dErrors.HasCode(s.service.EnableTOTP(s.ctx, "pump7", code), dErrors.CodeInvalidState))

	res, err := s.service.Login(s.ctx, models.RoleDealer, "pump7", created.TemporaryPassword)
	s.Require().NoError(err)
	s.True(res.TOTPRequired)
	s.Empty(res.Token)
	s.Require().NotEmpty(res.ChallengeToken)

	_, err = s.service.VerifyTOTP(s.ctx, res.ChallengeToken, "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	verified, err := s.service.VerifyTOTP(s.ctx, res.ChallengeToken, code)
	s.Require().NoError(err)
	s.NotEmpty(verified.Token)

	_, err = s.service.VerifyTOTP(s.ctx, verified.Token, code)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "a session token is not a challenge")

	uri, err := s.service.TOTPSetup(s.ctx, "pump7")
	s.Require().NoError(err)
	s.Equal(created.TOTPURI, uri)
}

func (s *AuthSuite) TestChangeAndResetPassword() {
	created := s.createProfile("pump7")

	err := s.service.ChangePassword(s.ctx, "pump7", "wrong-current", "new-password-1")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	err = s.service.ChangePassword(s.ctx, "pump7", created.TemporaryPassword, "short")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.Require().NoError(s.service.ChangePassword(s.ctx, "pump7", created.TemporaryPassword, "new-password-1"))
	res, err := s.service.Login(s.ctx, models.RoleDealer, "pump7", "new-password-1")
	s.Require().NoError(err)
	s.False(res.MustChangePassword)

	temporary, err := s.service.ResetPassword(s.ctx, "admin", s.dealer.ID)
	s.Require().NoError(err)
	res, err = s.service.Login(s.ctx, models.RoleDealer, "pump7", temporary)
	s.Require().NoError(err)
	s.True(res.MustChangePassword)

	entries, err := s.audit.List(s.ctx, audit.Filter{EntityType: audit.EntityDealerProfile})
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{audit.ActionResetPassword, audit.ActionUpdate, audit.ActionCreate}, actions)
}

func (s *AuthSuite) TestCreateDealerProfileConflicts() {
	s.createProfile("pump7")

	_, err := s.service.CreateDealerProfile(s.ctx, "admin", &models.CreateProfileRequest{
		DealerID: s.dealer.ID.String(),
		Username: "pump8",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	other, err := s.dealers.CreateDealer(s.ctx, "admin", &dealermodels.CreateDealerRequest{LegalName: "Other"})
	s.Require().NoError(err)
	_, err = s.dealers.SetStatus(s.ctx, "admin", other.ID, dealermodels.StatusInactive)
	s.Require().NoError(err)
	_, err = s.service.CreateDealerProfile(s.ctx, "admin", &models.CreateProfileRequest{
		DealerID: other.ID.String(),
		Username: "pump9",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	profiles, err := s.service.ListProfiles(s.ctx)
	s.Require().NoError(err)
	s.Len(profiles, 1)
}

func (s *AuthSuite) TestAuditFailureRollsBackProfile() {
	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockStore(ctrl)
	failing.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("audit db down"))
	svc := New(s.db, s.accounts, s.tokens, s.dealers, recorder.New(failing), WithBcryptCost(bcrypt.MinCost))

	_, err := svc.CreateDealerProfile(s.ctx, "admin", &models.CreateProfileRequest{
		DealerID: s.dealer.ID.String(),
		Username: "pump7",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.accounts.FindByDealerID(s.ctx, s.dealer.ID)
	s.Error(err)
}
