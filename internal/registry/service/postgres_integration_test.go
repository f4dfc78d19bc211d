//go:build integration

package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	dealermodels "unionregistry/internal/dealer/models"
	dealerservice "unionregistry/internal/dealer/service"
	dealerstore "unionregistry/internal/dealer/store"
	"unionregistry/internal/registry/models"
	"unionregistry/internal/registry/service"
	"unionregistry/internal/registry/store"
	"unionregistry/internal/storage/postgres"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/audit/recorder"
	auditpg "unionregistry/pkg/platform/audit/store/postgres"
	"unionregistry/pkg/testutil/containers"
)

type PostgresRegistrySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	audit    *auditpg.Store
	service  *service.Service
	dealers  []*dealermodels.Dealer
}

func TestPostgresRegistrySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRegistrySuite))
}

func (s *PostgresRegistrySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *PostgresRegistrySuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx,
		"audit_outbox", "audit_logs", "transfer_requests", "client_dealer_links", "vehicles",
		"clients", "separation_events", "employments", "persons", "accounts", "dealers",
	)
	s.Require().NoError(err)

	db := s.postgres.DB
	tx := postgres.NewRunner(db, 0)
	s.audit = auditpg.New(db)
	rec := recorder.New(s.audit)
	dealers := dealerservice.New(tx, dealerstore.NewPostgres(db), rec)
	s.service = service.New(tx, store.NewPostgres(db), dealers, rec)

	s.dealers = nil
	for i := range 4 {
		d, err := dealers.CreateDealer(ctx, "admin", &dealermodels.CreateDealerRequest{LegalName: fmt.Sprintf("Dealer %d", i)})
		s.Require().NoError(err)
		s.dealers = append(s.dealers, d)
	}
}

// Concurrent registrations of one person at different dealers leave exactly
// one active employment; every other attempt reports a conflict.
func (s *PostgresRegistrySuite) TestConcurrentEmployeeRegistration() {
	ctx := context.Background()
	const attempts = 16

	var wg sync.WaitGroup
	var created, conflicts, failures atomic.Int32
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.service.RegisterEmployee(ctx, "operator", models.RegisterEmployee{
				NationalID: "123412341234",
				DealerID:   s.dealers[i%len(s.dealers)].ID,
				Person:     models.PersonDetails{Name: "Asha"},
			})
			switch {
			case err != nil:
				failures.Add(1)
			case res.Conflict != nil:
				conflicts.Add(1)
			case !res.AlreadyActive:
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	s.Equal(int32(1), created.Load())
	s.Positive(conflicts.Load())

	var active int
	err := s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM employments WHERE status = 'ACTIVE'`).Scan(&active)
	s.Require().NoError(err)
	s.Equal(1, active)

	entries, err := s.audit.List(ctx, audit.Filter{EntityType: audit.EntityEmployment})
	s.Require().NoError(err)
	s.Len(entries, 1)
}

// Concurrent onboarding of the same client mirrors the employee rule.
func (s *PostgresRegistrySuite) TestConcurrentClientRegistration() {
	ctx := context.Background()
	const attempts = 12

	var wg sync.WaitGroup
	var linked, conflicts atomic.Int32
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.service.RegisterClient(ctx, "operator", models.RegisterClient{
				Type:     models.ClientPrivate,
				TaxID:    "ABCDE1234F",
				Name:     "Metro Logistics",
				DealerID: s.dealers[i%len(s.dealers)].ID,
			})
			if err != nil {
				return
			}
			if res.Conflict != nil {
				conflicts.Add(1)
			} else if !res.LinkReused {
				linked.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), linked.Load())
	s.Positive(conflicts.Load())

	var clients, active int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM clients`).Scan(&clients))
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM client_dealer_links WHERE status = 'ACTIVE'`).Scan(&active))
	s.Equal(1, clients)
	s.Equal(1, active)
}

// A write and its audit entry commit together, and the entry is queued on
// the outbox in the same transaction.
func (s *PostgresRegistrySuite) TestAuditQueuedOnOutbox() {
	ctx := context.Background()
	res, err := s.service.RegisterEmployee(ctx, "operator", models.RegisterEmployee{
		NationalID: "555566667777",
		DealerID:   s.dealers[0].ID,
		Person:     models.PersonDetails{Name: "Ravi"},
	})
	s.Require().NoError(err)
	s.Require().Nil(res.Conflict)

	msgs, err := s.audit.FetchUnpublished(ctx, 100)
	s.Require().NoError(err)
	var found bool
	for _, m := range msgs {
		if m.EntityID == res.Employment.ID.String() {
			found = true
		}
	}
	s.True(found, "employment audit entry should be queued")
}
