//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"unionregistry/internal/auth/models"
	"unionregistry/internal/auth/store"
	dealermodels "unionregistry/internal/dealer/models"
	dealerstore "unionregistry/internal/dealer/store"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
	"unionregistry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	dealers  *dealerstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.dealers = dealerstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "accounts", "dealers")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newDealer(name string) id.DealerID {
	d, err := dealermodels.NewDealer(id.DealerID(uuid.New()), name, name, "Srinagar", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.dealers.Create(context.Background(), d))
	return d.ID
}

func account(username string, role models.Role, dealerID id.DealerID) *models.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Account{
		ID:                id.ProfileID(uuid.New()),
		Username:          username,
		Role:              role,
		DealerID:          dealerID,
		PasswordHash:      "$2a$10$hash",
		TemporaryPassword: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *PostgresStoreSuite) TestUniqueUsernameAndDealer() {
	ctx := context.Background()
	dealerID := s.newDealer("Kale Fuels")

	s.Require().NoError(s.store.Create(ctx, account("pump7", models.RoleDealer, dealerID)))
	s.ErrorIs(s.store.Create(ctx, account("pump7", models.RoleDealer, s.newDealer("Other"))), sentinel.ErrAlreadyUsed)
	s.ErrorIs(s.store.Create(ctx, account("pump8", models.RoleDealer, dealerID)), sentinel.ErrAlreadyUsed)

	found, err := s.store.FindByDealerID(ctx, dealerID)
	s.Require().NoError(err)
	s.Equal("pump7", found.Username)
	s.Equal(dealerID, found.DealerID)

	_, err = s.store.FindByUsername(ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateRoundTrip() {
	ctx := context.Background()
	admin := account(models.AdminUsername, models.RoleAdmin, id.DealerID{})
	s.Require().NoError(s.store.Create(ctx, admin))

	login := time.Now().UTC().Truncate(time.Microsecond)
	admin.TOTPSecret = "JBSWY3DPEHPK3PXP"
	admin.TOTPEnabled = true
	admin.ApplyPassword("$2a$10$other", false, login)
	admin.ApplyLogin(login)
	s.Require().NoError(s.store.Update(ctx, admin))

	found, err := s.store.FindByUsername(ctx, models.AdminUsername)
	s.Require().NoError(err)
	s.True(found.TOTPEnabled)
	s.False(found.TemporaryPassword)
	s.Equal("$2a$10$other", found.PasswordHash)
	s.Require().NotNil(found.LastLoginAt)
	s.True(login.Equal(*found.LastLoginAt))
	s.True(found.DealerID.IsNil())

	missing := account("ghost", models.RoleAdmin, id.DealerID{})
	s.ErrorIs(s.store.Update(ctx, missing), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListDealerProfilesSkipsAdmin() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, account(models.AdminUsername, models.RoleAdmin, id.DealerID{})))
	s.Require().NoError(s.store.Create(ctx, account("zeta", models.RoleDealer, s.newDealer("Z"))))
	s.Require().NoError(s.store.Create(ctx, account("alpha", models.RoleDealer, s.newDealer("A"))))

	profiles, err := s.store.ListDealerProfiles(ctx)
	s.Require().NoError(err)
	s.Require().Len(profiles, 2)
	s.Equal("alpha", profiles[0].Username)
	s.Equal("zeta", profiles[1].Username)
}
